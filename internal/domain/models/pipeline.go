package models

import (
	"fmt"
	"strings"
	"time"
)

type StageName string

const (
	StageCurrentListings  StageName = "current_listings"
	StageUpcomingListings StageName = "upcoming_listings"
	StageSubscriptions    StageName = "subscriptions"
	StagePremiums         StageName = "premiums"
	StageMathPredictions  StageName = "math_predictions"
	StageAIPredictions    StageName = "ai_predictions"
	StageFusion           StageName = "fusion"
)

// Stages returns the fixed execution order.
func Stages() []StageName {
	return []StageName{
		StageCurrentListings,
		StageUpcomingListings,
		StageSubscriptions,
		StagePremiums,
		StageMathPredictions,
		StageAIPredictions,
		StageFusion,
	}
}

// Critical stages abort or fail the whole run.
func (s StageName) Critical() bool {
	return s == StageCurrentListings || s == StageFusion
}

func ParseStage(name string) (StageName, error) {
	n := StageName(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range Stages() {
		if s == n {
			return s, nil
		}
	}
	valid := make([]string, 0, 7)
	for _, s := range Stages() {
		valid = append(valid, string(s))
	}
	return "", fmt.Errorf("unknown stage %q, valid stages: %s", name, strings.Join(valid, ", "))
}

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
)

type ItemError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

type StageResult struct {
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
	Message     string      `json:"message,omitempty"`
	ItemCount   int         `json:"itemCount"`
	FailedItems []ItemError `json:"failedItems,omitempty"`
}

func (r StageResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// StageRefresh records a single stage re-executed outside a full run. The
// run it follows is left untouched.
type StageRefresh struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	RefreshedAt time.Time   `json:"refreshedAt"`
	Result      StageResult `json:"result"`
}

// RefreshKey is the storage key of the last refresh of stage on date.
func RefreshKey(date string, stage StageName) string {
	return date + "/refresh/" + string(stage)
}

// PipelineRun records one orchestrator invocation.
type PipelineRun struct {
	ID          string        `json:"id"`
	Date        string        `json:"date"`
	Trigger     string        `json:"trigger,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
	Success     bool          `json:"success"`
	SuccessRate float64       `json:"successRate"`
	Error       string        `json:"error,omitempty"`
	Stages      []StageResult `json:"stages"`
}

func (r *PipelineRun) Stage(name StageName) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}
