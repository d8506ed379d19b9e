package models

import (
	"encoding/json"
	"time"
)

const DocumentVersion = 1

// Document is the stored envelope around every persisted payload.
type Document struct {
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   int             `json:"version"`
	Count     int             `json:"count"`
	Data      json.RawMessage `json:"data"`
}

func (d *Document) Decode(dest interface{}) error {
	return json.Unmarshal(d.Data, dest)
}

// Storage namespaces.
const (
	NamespaceListings      = "listings"
	NamespaceSubscriptions = "subscriptions"
	NamespacePremiums      = "premiums"
	NamespaceMath          = "math_predictions"
	NamespaceAI            = "ai_predictions"
	NamespacePredictions   = "predictions"
	NamespaceRuns          = "runs"
	NamespaceFallback      = "fallback"
)
