package models

// Requests for the pipeline HTTP endpoints.

type RunRequest struct {
	Date  string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
	Async bool   `query:"async" json:"async"`
}

type StageRefreshRequest struct {
	Stage string `param:"stage" validate:"required"`
	Date  string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
	Async bool   `query:"async" json:"async"`
}

type RefreshLookupRequest struct {
	Stage string `param:"stage" validate:"required"`
	Date  string `query:"date" validate:"required,datetime=2006-01-02"`
}

type PremiumsRequest struct {
	Date string `param:"date" validate:"required,datetime=2006-01-02"`
}

type PredictionsRequest struct {
	Date   string `param:"date" validate:"required,datetime=2006-01-02"`
	Symbol string `param:"symbol" validate:"omitempty,max=32"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=500"`
}

// RunTrigger is the payload of the run-request topic and queue jobs.
type RunTrigger struct {
	Date   string    `json:"date"`
	Stage  StageName `json:"stage,omitempty"`
	Source string    `json:"source,omitempty"`
}
