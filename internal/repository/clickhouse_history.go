package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	pkgch "IPOPulse/pkg/clickhouse"
	applogger "IPOPulse/pkg/logger"
)

const clickhouseHistoryTable = "prediction_history"

var clickhouseHistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + clickhouseHistoryTable + ` (
		generated_at           DateTime64(3, 'UTC'),
		run_date               Date,
		run_id                 String,
		symbol                 LowCardinality(String),
		company                String,
		recommendation         LowCardinality(String),
		consensus              LowCardinality(String),
		expected_gain          Float64,
		weighted_score         Float64,
		risk                   LowCardinality(String),
		confidence             LowCardinality(String),
		issue_price            Float64,
		expected_listing_price Float64,
		payload                String
	) ENGINE = ReplacingMergeTree(generated_at)
	ORDER BY (symbol, run_date, run_id)`,
}

// ClickHouseHistory records every fused prediction for later analysis.
type ClickHouseHistory struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewClickHouseHistory(ch *pkgch.Client, l *applogger.Logger) domrepo.PredictionHistory {
	return &ClickHouseHistory{client: ch, db: ch.DB(), l: l.With(applogger.Component("history"), applogger.String("backend", "clickhouse"))}
}

func (h *ClickHouseHistory) Init(ctx context.Context) error {
	return h.client.InitSchema(ctx, clickhouseHistorySchema)
}

// Record inserts predictions in chunks using multi-row VALUES to reduce
// round-trips.
func (h *ClickHouseHistory) Record(ctx context.Context, preds []models.ConsensusPrediction) error {
	const chunkSize = 500
	for start := 0; start < len(preds); start += chunkSize {
		end := start + chunkSize
		if end > len(preds) {
			end = len(preds)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*14)
		for _, p := range preds[start:end] {
			if p.Symbol == "" {
				continue
			}
			payload, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode prediction %s: %w", p.Symbol, err)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				p.GeneratedAt,
				p.Date,
				p.RunID,
				p.Symbol,
				p.CompanyName,
				string(p.Recommendation),
				string(p.Consensus),
				p.ExpectedGainPercent,
				p.WeightedScore,
				string(p.Risk),
				string(p.Confidence),
				p.IssuePrice,
				p.ExpectedListingPrice,
				string(payload),
			)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf(`INSERT INTO %s (generated_at, run_date, run_id, symbol, company, recommendation,
			consensus, expected_gain, weighted_score, risk, confidence, issue_price, expected_listing_price, payload)
			VALUES %s`, clickhouseHistoryTable, strings.Join(values, ","))
		if _, err := h.db.ExecContext(ctx, q, args...); err != nil {
			h.l.Error("clickhouse history insert failed", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("insert prediction history: %w", err)
		}
	}
	return nil
}

func (h *ClickHouseHistory) Recent(ctx context.Context, symbol string, limit int) ([]models.ConsensusPrediction, error) {
	if limit <= 0 {
		limit = 30
	}
	q := fmt.Sprintf(`SELECT payload FROM %s FINAL WHERE symbol = ? ORDER BY generated_at DESC LIMIT ?`, clickhouseHistoryTable)
	rows, err := h.db.QueryContext(ctx, q, strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("query prediction history: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

func (h *ClickHouseHistory) Close() error {
	return h.client.Close()
}

type payloadRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPayloads(rows payloadRows) ([]models.ConsensusPrediction, error) {
	out := make([]models.ConsensusPrediction, 0, 16)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		var p models.ConsensusPrediction
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
