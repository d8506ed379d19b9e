package nse

import (
	"bytes"
	"encoding/json"
	"strings"

	"IPOPulse/internal/domain/errs"
)

// flexString accepts JSON strings, numbers, booleans and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		*f = flexString(string(b))
	}
	return nil
}

func (f flexString) String() string { return string(f) }

type rawListing struct {
	Symbol        flexString `json:"symbol"`
	CompanyName   flexString `json:"companyName"`
	Series        flexString `json:"series"`
	IssueStart    flexString `json:"issueStartDate"`
	IssueEnd      flexString `json:"issueEndDate"`
	IssuePrice    flexString `json:"issuePrice"`
	PriceBand     flexString `json:"priceBand"`
	IssueSize     flexString `json:"issueSize"`
	SharesOffered flexString `json:"noOfSharesOffered"`
	SharesBid     flexString `json:"noOfsharesBid"`
	Times         flexString `json:"noOfTime"`
	Status        flexString `json:"status"`
}

type rawSubscriptionRow struct {
	SrNo          flexString `json:"srNo"`
	Category      flexString `json:"category"`
	SharesOffered flexString `json:"noOfShareOffered"`
	SharesBid     flexString `json:"noOfSharesBid"`
	Times         flexString `json:"noOfTotalMeant"`
}

type rawSubscription struct {
	UpdateTime flexString        `json:"updateTime"`
	DataList   []json.RawMessage `json:"dataList"`
}

type rawMarketStatus struct {
	MarketState []struct {
		Market      flexString `json:"market"`
		Status      flexString `json:"marketStatus"`
		TradeDate   flexString `json:"tradeDate"`
		Index       flexString `json:"index"`
		Last        flexString `json:"last"`
		Variation   flexString `json:"variation"`
		PercentDiff flexString `json:"percentChange"`
		Message     flexString `json:"marketStatusMessage"`
	} `json:"marketState"`
}

// unwrapList accepts either a bare array or an object carrying a "data" array.
func unwrapList(op string, payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errs.Newf(errs.KindMalformed, op, "empty payload")
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errs.E(errs.KindMalformed, op, err)
		}
	case '{':
		var wrapped struct {
			Data *[]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, errs.E(errs.KindMalformed, op, err)
		}
		if wrapped.Data == nil {
			return nil, errs.Newf(errs.KindMalformed, op, "object without data array")
		}
		items = *wrapped.Data
	default:
		return nil, errs.Newf(errs.KindMalformed, op, "unexpected payload type")
	}
	return items, nil
}
