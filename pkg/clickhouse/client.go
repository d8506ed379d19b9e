package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns a database/sql pool opened through the ClickHouse driver.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens and pings the pool. With WithBootstrap the database is
// created through the server's default database first.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := ClientConfig{
		Database:    "default",
		User:        "default",
		PoolSize:    4,
		Lifetime:    5 * time.Minute,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		return nil, errors.New("clickhouse: address is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if cfg.Bootstrap && cfg.Database != "default" {
		admin := ch.OpenDB(cfg.options("default"))
		_, err := admin.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(cfg.Database))
		_ = admin.Close()
		if err != nil {
			return nil, fmt.Errorf("clickhouse: create database %s: %w", cfg.Database, err)
		}
	}

	db := ch.OpenDB(cfg.options(cfg.Database))
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse: ping %s: %w", cfg.Addr, err)
	}
	return &Client{db: db, database: cfg.Database}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse: schema statement %d: %w", i, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func quoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' || name[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}
