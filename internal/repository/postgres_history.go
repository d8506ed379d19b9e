package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	applogger "IPOPulse/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresHistorySchema = `
CREATE TABLE IF NOT EXISTS prediction_history (
	id                     BIGSERIAL PRIMARY KEY,
	run_id                 TEXT        NOT NULL,
	run_date               DATE        NOT NULL,
	symbol                 TEXT        NOT NULL,
	recommendation         TEXT        NOT NULL,
	expected_gain          DOUBLE PRECISION,
	confidence             TEXT,
	risk                   TEXT,
	generated_at           TIMESTAMPTZ NOT NULL,
	payload                JSONB       NOT NULL,
	UNIQUE (run_id, symbol)
);
CREATE INDEX IF NOT EXISTS prediction_history_symbol_idx ON prediction_history (symbol, generated_at DESC);`

// PostgresHistory stores fused predictions in Postgres through a pgx pool.
type PostgresHistory struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

// NewPostgresPool opens and verifies a pgx connection pool.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func NewPostgresHistory(pool *pgxpool.Pool, l *applogger.Logger) domrepo.PredictionHistory {
	return &PostgresHistory{pool: pool, l: l.With(applogger.Component("history"), applogger.String("backend", "postgres"))}
}

func (h *PostgresHistory) Init(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, postgresHistorySchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Record queues one insert per prediction in a single batch; re-recording a
// (run, symbol) pair is a no-op.
func (h *PostgresHistory) Record(ctx context.Context, preds []models.ConsensusPrediction) error {
	b := &pgx.Batch{}
	for _, p := range preds {
		if p.Symbol == "" {
			continue
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode prediction %s: %w", p.Symbol, err)
		}
		b.Queue(`INSERT INTO prediction_history
			(run_id, run_date, symbol, recommendation, expected_gain, confidence, risk, generated_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, symbol) DO NOTHING`,
			p.RunID, p.Date, p.Symbol, string(p.Recommendation), p.ExpectedGainPercent,
			string(p.Confidence), string(p.Risk), p.GeneratedAt, payload,
		)
	}
	if b.Len() == 0 {
		return nil
	}

	br := h.pool.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			h.l.Error("postgres history insert failed", applogger.Error(err))
			return fmt.Errorf("insert prediction history: %w", err)
		}
	}
	return br.Close()
}

func (h *PostgresHistory) Recent(ctx context.Context, symbol string, limit int) ([]models.ConsensusPrediction, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := h.pool.Query(ctx,
		`SELECT payload::text FROM prediction_history WHERE symbol = $1 ORDER BY generated_at DESC LIMIT $2`,
		strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("query prediction history: %w", err)
	}
	defer rows.Close()
	return scanPayloads(rows)
}

func (h *PostgresHistory) Close() error {
	h.pool.Close()
	return nil
}
