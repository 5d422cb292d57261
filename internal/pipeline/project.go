package pipeline

import (
	"context"
	"fmt"

	"go-school-projections/internal/model"

	"golang.org/x/sync/errgroup"
)

// ProjectionResult collects the projected rows of every region that could be
// projected, their ratio summaries, and the regions that were skipped
type ProjectionResult struct {
	Rows    []model.ProjectionRow
	Ratios  []model.RatioRecord
	Skipped []error
}

// ProjectRegion applies the ratio method to the rows of a single region.
//
// Historical rows are those after cutoffYear with a school count. Their
// enrollment-per-school ratios give min, median and max; every row then gets
// proxy/ratio school estimates, while rows with an observed school count keep
// it verbatim. A region without historical rows, or without any defined
// ratio, fails with InsufficientHistoryError.
func ProjectRegion(region string, rows []model.RegionYearRecord, cutoffYear int) ([]model.ProjectionRow, model.RatioRecord, error) {
	var ratios []float64
	historical := 0
	for _, r := range rows {
		if r.Year <= cutoffYear || !r.SchoolCount.Valid {
			continue
		}
		historical++
		if ratio := model.Div(r.Enrollment, r.SchoolCount); ratio.Valid {
			ratios = append(ratios, ratio.Value)
		}
	}
	if historical == 0 {
		return nil, model.RatioRecord{}, &model.InsufficientHistoryError{
			Region: region,
			Reason: fmt.Sprintf("no rows after %d with a school count", cutoffYear),
		}
	}
	summary, ok := SummarizeRatios(region, ratios)
	if !ok {
		return nil, model.RatioRecord{}, &model.InsufficientHistoryError{
			Region: region,
			Reason: "no usable enrollment-per-school ratio",
		}
	}

	out := make([]model.ProjectionRow, len(rows))
	for i, r := range rows {
		out[i] = projectRow(r, summary)
	}
	return out, summary, nil
}

// projectRow is the single precedence rule for one row: observed school
// counts always win over ratio-derived estimates.
func projectRow(r model.RegionYearRecord, s model.RatioRecord) model.ProjectionRow {
	p := model.ProjectionRow{RegionYearRecord: r}
	p.EnrollmentProxy = r.Enrollment.Or(r.ChildPopulation6to10)
	p.Ratio = model.Div(r.Enrollment, r.SchoolCount)

	if r.SchoolCount.Valid {
		p.RatioHat, p.RatioLCL, p.RatioUCL = p.Ratio, p.Ratio, p.Ratio
		p.ScuoleHat, p.ScuoleLCL, p.ScuoleUCL = r.SchoolCount, r.SchoolCount, r.SchoolCount
		return p
	}

	p.RatioHat = model.Some(s.Median)
	p.RatioLCL = model.Some(s.Min)
	p.RatioUCL = model.Some(s.Max)
	// A higher ratio means fewer schools, so the bounds swap.
	p.ScuoleHat = model.Div(p.EnrollmentProxy, p.RatioHat)
	p.ScuoleLCL = model.Div(p.EnrollmentProxy, p.RatioUCL)
	p.ScuoleUCL = model.Div(p.EnrollmentProxy, p.RatioLCL)
	return p
}

type regionOutcome struct {
	rows    []model.ProjectionRow
	summary model.RatioRecord
	err     error
}

// Project runs ProjectRegion for every region on up to workers goroutines.
// Output is ordered by region then year regardless of scheduling.
func Project(ctx context.Context, records []model.RegionYearRecord, cutoffYear, workers int) (ProjectionResult, error) {
	sorted := append([]model.RegionYearRecord(nil), records...)
	sortRecords(sorted)
	order, groups := groupByRegion(sorted)
	outcomes := make([]regionOutcome, len(order))

	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, region := range order {
		i, region := i, region
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, summary, err := ProjectRegion(region, groups[region], cutoffYear)
			outcomes[i] = regionOutcome{rows: rows, summary: summary, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ProjectionResult{}, err
	}

	var res ProjectionResult
	for _, o := range outcomes {
		if o.err != nil {
			res.Skipped = append(res.Skipped, o.err)
			continue
		}
		res.Rows = append(res.Rows, o.rows...)
		res.Ratios = append(res.Ratios, o.summary)
	}
	return res, nil
}
