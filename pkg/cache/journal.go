package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/scopestat/pkg/batch"
	"github.com/Sumatoshi-tech/scopestat/pkg/model"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// Run journals one batch run.
type Run struct {
	store *Store
	id    string
}

// RunInfo summarizes a journaled run.
type RunInfo struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	ID            string
	Root          string
	TotalFiles    int
	AnalyzedFiles int
	FailedFiles   int
	// Recorded is the number of outcomes written so far.
	Recorded int
}

// Finished reports whether Finish was called for the run.
func (ri RunInfo) Finished() bool {
	return !ri.FinishedAt.IsZero()
}

// BeginRun creates a journal entry for a batch over total files under root.
func (s *Store) BeginRun(ctx context.Context, root string, total int) (*Run, error) {
	id := uuid.New().String()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, root, started_at, total_files) VALUES (?, ?, ?, ?)`,
		id, root, time.Now().UnixMilli(), total,
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	return &Run{store: s, id: id}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Record writes one outcome. It satisfies batch.Journal and keeps writing
// after the batch context is canceled so that canceled files are journaled too.
func (r *Run) Record(ctx context.Context, outcome batch.Outcome) error {
	status, message := statusOK, ""
	if outcome.Failed() {
		status, message = statusFailed, outcome.Err.Error()
	}

	_, err := r.store.conn.ExecContext(context.WithoutCancel(ctx),
		`INSERT OR REPLACE INTO outcomes (run_id, idx, path, status, kind, message, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.id, outcome.Index, outcome.Path, status, outcome.Kind(), message, outcome.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal %s: %w", outcome.Path, err)
	}

	return nil
}

// Finish stores the final counters of the batch.
func (r *Run) Finish(ctx context.Context, result *model.BatchResult) error {
	_, err := r.store.conn.ExecContext(context.WithoutCancel(ctx),
		`UPDATE runs SET finished_at = ?, analyzed_files = ?, failed_files = ? WHERE id = ?`,
		time.Now().UnixMilli(), result.AnalyzedFiles, result.FailedFiles, r.id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.id, err)
	}

	return nil
}

// Runs lists up to limit journaled runs, most recent first. A non-positive
// limit lists all runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.id, r.root, r.started_at, COALESCE(r.finished_at, 0), r.total_files,
		       r.analyzed_files, r.failed_files,
		       (SELECT COUNT(*) FROM outcomes o WHERE o.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo

	for rows.Next() {
		var (
			info                  RunInfo
			startedAt, finishedAt int64
		)

		err = rows.Scan(&info.ID, &info.Root, &startedAt, &finishedAt, &info.TotalFiles,
			&info.AnalyzedFiles, &info.FailedFiles, &info.Recorded)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		info.StartedAt = time.UnixMilli(startedAt)
		if finishedAt > 0 {
			info.FinishedAt = time.UnixMilli(finishedAt)
		}

		runs = append(runs, info)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return runs, nil
}

var _ batch.Journal = (*Run)(nil)
