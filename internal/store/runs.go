package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-school-projections/internal/model"
)

// CreateRun stores a new run
func (s *Store) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, cutoff_year, baseline_year, horizon1, horizon2, config, regions, skipped, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status,
		run.Horizons.Cutoff, run.Horizons.Baseline, run.Horizons.H1, run.Horizons.H2,
		run.Config, run.Regions, run.Skipped, run.Error,
		run.StartedAt.UTC(), nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the final status and counters of a run
func (s *Store) FinishRun(ctx context.Context, run model.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, regions = ?, skipped = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		run.Status, run.Regions, run.Skipped, run.Error, nullTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, status, cutoff_year, baseline_year, horizon1, horizon2, config, regions, skipped, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.Run, error) {
	var (
		run      model.Run
		finished sql.NullTime
	)
	err := row.Scan(&run.ID, &run.Status,
		&run.Horizons.Cutoff, &run.Horizons.Baseline, &run.Horizons.H1, &run.Horizons.H2,
		&run.Config, &run.Regions, &run.Skipped, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return run, err
	}
	if finished.Valid {
		t := finished.Time.UTC()
		run.FinishedAt = &t
	}
	run.StartedAt = run.StartedAt.UTC()
	return run, nil
}

// GetRun fetches one run
func (s *Store) GetRun(ctx context.Context, id string) (model.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return run, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveStageProgress inserts or updates the metrics of one stage
func (s *Store) SaveStageProgress(ctx context.Context, runID string, m model.StageMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_progress (run_id, stage, status, rows_in, rows_out, dropped, error_count, start_time, end_time, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, stage) DO UPDATE SET
			status = excluded.status,
			rows_in = excluded.rows_in,
			rows_out = excluded.rows_out,
			dropped = excluded.dropped,
			error_count = excluded.error_count,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration_ms = excluded.duration_ms`,
		runID, m.Stage, m.Status, m.RowsIn, m.RowsOut, m.Dropped, m.ErrorCount,
		m.StartTime.UTC(), nullTime(m.EndTime), m.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save stage progress: %w", err)
	}
	return nil
}

// GetStageProgress lists a run's stages in execution order
func (s *Store) GetStageProgress(ctx context.Context, runID string) ([]model.StageMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, status, rows_in, rows_out, dropped, error_count, start_time, end_time, duration_ms
		FROM stage_progress WHERE run_id = ? ORDER BY start_time, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage progress: %w", err)
	}
	defer rows.Close()

	stages := []model.StageMetrics{}
	for rows.Next() {
		var (
			m      model.StageMetrics
			end    sql.NullTime
			millis int64
		)
		if err := rows.Scan(&m.Stage, &m.Status, &m.RowsIn, &m.RowsOut, &m.Dropped, &m.ErrorCount, &m.StartTime, &end, &millis); err != nil {
			return nil, err
		}
		m.StartTime = m.StartTime.UTC()
		if end.Valid {
			t := end.Time.UTC()
			m.EndTime = &t
		}
		m.Duration = time.Duration(millis) * time.Millisecond
		stages = append(stages, m)
	}
	return stages, rows.Err()
}

// SaveRunError records a non-fatal error
func (s *Store) SaveRunError(ctx context.Context, runID string, e model.ErrorDetail) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_errors (run_id, stage, kind, region, year, message, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Stage, e.Kind, e.Region, e.Year, e.Message, e.Severity, ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run error: %w", err)
	}
	return nil
}

// GetRunErrors lists a run's errors in the order they were recorded
func (s *Store) GetRunErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, kind, region, year, message, severity, created_at
		FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run errors: %w", err)
	}
	defer rows.Close()

	errs := []model.ErrorDetail{}
	for rows.Next() {
		var e model.ErrorDetail
		if err := rows.Scan(&e.Stage, &e.Kind, &e.Region, &e.Year, &e.Message, &e.Severity, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
