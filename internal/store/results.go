package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go-school-projections/internal/model"
)

// inTx runs fn inside a transaction that first clears the run's rows of
// table, so saving twice replaces instead of duplicating.
func (s *Store) inTx(ctx context.Context, table, runID string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := fn(tx); err != nil {
		return fmt.Errorf("failed to save %s: %w", table, err)
	}
	return tx.Commit()
}

// SaveProjections replaces the run's projection rows
func (s *Store) SaveProjections(ctx context.Context, runID string, rows []model.ProjectionRow) error {
	return s.inTx(ctx, "projections", runID, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO projections (run_id, region, year, school_count, enrollment, children_6_10, is_projected,
				enrollment_proxy, ratio, ratio_hat, ratio_lcl, ratio_ucl, scuole_hat, scuole_lcl, scuole_ucl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			_, err := stmt.ExecContext(ctx, runID, r.Region, r.Year,
				nullFloat(r.SchoolCount), nullFloat(r.Enrollment), nullFloat(r.ChildPopulation6to10), r.IsProjected,
				nullFloat(r.EnrollmentProxy), nullFloat(r.Ratio),
				nullFloat(r.RatioHat), nullFloat(r.RatioLCL), nullFloat(r.RatioUCL),
				nullFloat(r.ScuoleHat), nullFloat(r.ScuoleLCL), nullFloat(r.ScuoleUCL))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProjections returns the run's rows ordered by region and year,
// optionally restricted to one region
func (s *Store) GetProjections(ctx context.Context, runID, region string) ([]model.ProjectionRow, error) {
	query := `
		SELECT region, year, school_count, enrollment, children_6_10, is_projected,
			enrollment_proxy, ratio, ratio_hat, ratio_lcl, ratio_ucl, scuole_hat, scuole_lcl, scuole_ucl
		FROM projections WHERE run_id = ?`
	args := []any{runID}
	if region != "" {
		query += ` AND region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY region, year`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get projections: %w", err)
	}
	defer rows.Close()

	out := []model.ProjectionRow{}
	for rows.Next() {
		var p model.ProjectionRow
		var schools, enrollment, children, proxy, ratio, ratioHat, lcl, ucl, scuoleHat, scuoleLCL, scuoleUCL sql.NullFloat64
		if err := rows.Scan(&p.Region, &p.Year, &schools, &enrollment, &children, &p.IsProjected,
			&proxy, &ratio, &ratioHat, &lcl, &ucl, &scuoleHat, &scuoleLCL, &scuoleUCL); err != nil {
			return nil, err
		}
		p.SchoolCount, p.Enrollment, p.ChildPopulation6to10 = fromNull(schools), fromNull(enrollment), fromNull(children)
		p.EnrollmentProxy, p.Ratio = fromNull(proxy), fromNull(ratio)
		p.RatioHat, p.RatioLCL, p.RatioUCL = fromNull(ratioHat), fromNull(lcl), fromNull(ucl)
		p.ScuoleHat, p.ScuoleLCL, p.ScuoleUCL = fromNull(scuoleHat), fromNull(scuoleLCL), fromNull(scuoleUCL)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRatios replaces the run's per-region ratio bounds
func (s *Store) SaveRatios(ctx context.Context, runID string, ratios []model.RatioRecord) error {
	return s.inTx(ctx, "region_ratios", runID, func(tx *sql.Tx) error {
		for _, r := range ratios {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO region_ratios (run_id, region, ratio_min, ratio_median, ratio_max, samples)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, r.Region, r.Min, r.Median, r.Max, r.Samples); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRatios returns the run's ratio bounds ordered by region
func (s *Store) GetRatios(ctx context.Context, runID string) ([]model.RatioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, ratio_min, ratio_median, ratio_max, samples
		FROM region_ratios WHERE run_id = ? ORDER BY region`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ratios: %w", err)
	}
	defer rows.Close()

	out := []model.RatioRecord{}
	for rows.Next() {
		var r model.RatioRecord
		if err := rows.Scan(&r.Region, &r.Min, &r.Median, &r.Max, &r.Samples); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveStatistics replaces the run's decline statistics
func (s *Store) SaveStatistics(ctx context.Context, runID string, stats []model.DeclineStatistic) error {
	return s.inTx(ctx, "decline_statistics", runID, func(tx *sql.Tx) error {
		for _, st := range stats {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO decline_statistics (run_id, region, schools_baseline, schools_h1, schools_h2,
					change_h1, pct_change_h1, change_h2, pct_change_h2, category)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, st.Region, st.Baseline, st.AtH1, st.AtH2,
				st.ChangeH1, st.PctChangeH1, st.ChangeH2, st.PctChangeH2, st.Category); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStatistics returns the run's statistics sorted by first-horizon change,
// ties by region
func (s *Store) GetStatistics(ctx context.Context, runID string) ([]model.DeclineStatistic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT region, schools_baseline, schools_h1, schools_h2, change_h1, pct_change_h1, change_h2, pct_change_h2, category
		FROM decline_statistics WHERE run_id = ? ORDER BY pct_change_h1, region`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	defer rows.Close()

	out := []model.DeclineStatistic{}
	for rows.Next() {
		var st model.DeclineStatistic
		if err := rows.Scan(&st.Region, &st.Baseline, &st.AtH1, &st.AtH2,
			&st.ChangeH1, &st.PctChangeH1, &st.ChangeH2, &st.PctChangeH2, &st.Category); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveOutputs appends export results. Re-rendering a stored run adds its new
// files next to the original ones.
func (s *Store) SaveOutputs(ctx context.Context, runID string, outputs []model.ExportResult) error {
	for _, o := range outputs {
		ts := o.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO output_files (run_id, type, name, path, record_count, success, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, o.Type, o.Name, o.Path, o.RecordCount, o.Success, o.Error, ts.UTC()); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
	}
	return nil
}

// GetOutputs lists the run's outputs in the order they were recorded
func (s *Store) GetOutputs(ctx context.Context, runID string) ([]model.ExportResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, name, path, record_count, success, error, created_at
		FROM output_files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outputs: %w", err)
	}
	defer rows.Close()

	out := []model.ExportResult{}
	for rows.Next() {
		var o model.ExportResult
		if err := rows.Scan(&o.Type, &o.Name, &o.Path, &o.RecordCount, &o.Success, &o.Error, &o.Timestamp); err != nil {
			return nil, err
		}
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadReport rebuilds a stored run's report for re-rendering.
func (s *Store) LoadReport(ctx context.Context, runID string) (*model.RunReport, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	rep := &model.RunReport{Run: run}
	if rep.Stages, err = s.GetStageProgress(ctx, runID); err != nil {
		return nil, err
	}
	if rep.Errors, err = s.GetRunErrors(ctx, runID); err != nil {
		return nil, err
	}
	if rep.Projections, err = s.GetProjections(ctx, runID, ""); err != nil {
		return nil, err
	}
	if rep.Ratios, err = s.GetRatios(ctx, runID); err != nil {
		return nil, err
	}
	if rep.Statistics, err = s.GetStatistics(ctx, runID); err != nil {
		return nil, err
	}
	if rep.Outputs, err = s.GetOutputs(ctx, runID); err != nil {
		return nil, err
	}
	return rep, nil
}
