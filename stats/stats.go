// Package stats records per-run accounting in SQLite.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	chat_id INTEGER NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	iterations INTEGER NOT NULL DEFAULT 0,
	tool_calls INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id);
`

// Run is one completed agent run.
type Run struct {
	UserID           int64
	ChatID           int64
	Source           string
	Iterations       int
	ToolCalls        int
	Blocked          int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Duration         time.Duration
}

// Totals aggregates a user's runs.
type Totals struct {
	Runs        int   `json:"runs"`
	Iterations  int   `json:"iterations"`
	ToolCalls   int   `json:"tool_calls"`
	Blocked     int   `json:"blocked"`
	TotalTokens int64 `json:"total_tokens"`
}

// Tracker stores runs. A nil *Tracker is valid and records nothing.
type Tracker struct {
	db *sql.DB
}

// Open creates or opens the stats database at path.
func Open(path string) (*Tracker, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init stats schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

// Record inserts one run row.
func (t *Tracker) Record(ctx context.Context, run Run) error {
	if t == nil {
		return nil
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, chat_id, source, iterations, tool_calls,
			blocked, prompt_tokens, completion_tokens, total_tokens, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), run.UserID, run.ChatID, run.Source, run.Iterations,
		run.ToolCalls, run.Blocked, run.PromptTokens, run.CompletionTokens,
		run.TotalTokens, run.Duration.Milliseconds())
	return err
}

// UserTotals aggregates all runs for one user.
func (t *Tracker) UserTotals(ctx context.Context, userID int64) (Totals, error) {
	var totals Totals
	if t == nil {
		return totals, nil
	}
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(iterations), 0),
			COALESCE(SUM(tool_calls), 0),
			COALESCE(SUM(blocked), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM runs WHERE user_id = ?`, userID)
	err := row.Scan(&totals.Runs, &totals.Iterations, &totals.ToolCalls,
		&totals.Blocked, &totals.TotalTokens)
	return totals, err
}

// Close closes the database.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}
