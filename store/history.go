package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maastricht-university/audioscore/orchestrator"
)

//go:embed schema.sql
var schema string

// History records finished runs in a SQLite database.
type History struct {
	db *sql.DB
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID       string
	Kind        string
	Input       string
	Metrics     []string
	Requests    int
	Failed      int
	GeneratedAt time.Time
}

// OpenHistory opens the database at path and applies the schema.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// WAL keeps history writes from blocking concurrent readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record stores rep and every (request, metric) outcome in it.
func (h *History) Record(ctx context.Context, rep *orchestrator.Report) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, kind, input, reference, checkpoint, metrics, requests, failed, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Kind, rep.Input, rep.Reference, rep.Checkpoint,
		strings.Join(rep.Metrics, ","), len(rep.Records), rep.Failed(), rep.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rep.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO scores (run_id, request_idx, request_id, metric, value, error_kind, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range rep.Records {
		for id, v := range rec.Scores {
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, rep.RunID, rec.Index, rec.ID, id, string(b), nil, nil); err != nil {
				return fmt.Errorf("insert score %s/%s: %w", rec.ID, id, err)
			}
		}
		for id, e := range rec.Errors {
			if _, err := stmt.ExecContext(ctx, rep.RunID, rec.Index, rec.ID, id, nil, e.Kind(), e.Reason); err != nil {
				return fmt.Errorf("insert marker %s/%s: %w", rec.ID, id, err)
			}
		}
	}
	return tx.Commit()
}

// Runs lists the most recent runs, newest first.
func (h *History) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT run_id, kind, input, metrics, requests, failed, generated_at
	FROM runs ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			metrics string
		)
		if err := rows.Scan(&r.RunID, &r.Kind, &r.Input, &metrics, &r.Requests, &r.Failed, &r.GeneratedAt); err != nil {
			return nil, err
		}
		if metrics != "" {
			r.Metrics = strings.Split(metrics, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Failures returns the recorded error kinds per metric for a run.
func (h *History) Failures(ctx context.Context, runID string) (map[string]map[string]int, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT metric, error_kind, COUNT(*) FROM scores
	WHERE run_id = ? AND error_kind IS NOT NULL
	GROUP BY metric, error_kind`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]int{}
	for rows.Next() {
		var (
			metric, kind string
			n            int
		)
		if err := rows.Scan(&metric, &kind, &n); err != nil {
			return nil, err
		}
		if out[metric] == nil {
			out[metric] = map[string]int{}
		}
		out[metric][kind] = n
	}
	return out, rows.Err()
}

func (h *History) Close() error {
	return h.db.Close()
}
