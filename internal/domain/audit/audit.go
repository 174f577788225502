// Package audit records who ran which administrative operation with what
// inputs and outcome.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit line. Params and Summary are stored as JSON so the log
// survives schema drift in the operations it describes.
type Entry struct {
	When          time.Time
	Actor         string
	Endpoint      string
	Params        map[string]string
	Filename      string
	Summary       any
	AffectedTable string
}

// Sink accepts audit entries. Implementations must never fail the operation
// being audited; Record swallows and logs its own errors.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// PostgresSink writes entries to the import_logs table.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresSink(pool *pgxpool.Pool, logger *slog.Logger) *PostgresSink {
	return &PostgresSink{pool: pool, logger: logger}
}

func (s *PostgresSink) Record(ctx context.Context, e Entry) {
	if e.When.IsZero() {
		e.When = time.Now()
	}
	params, err := json.Marshal(e.Params)
	if err != nil {
		params = []byte("{}")
	}
	summary, err := json.Marshal(e.Summary)
	if err != nil {
		summary = []byte("null")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_logs (logged_at, actor, endpoint, params, filename, summary, affected_table)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.When, e.Actor, e.Endpoint, params, e.Filename, summary, e.AffectedTable)
	if err != nil {
		s.logger.Error("failed to record audit entry", "endpoint", e.Endpoint, "error", err)
	}
}

// NopSink discards entries; used in tests and tooling.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
