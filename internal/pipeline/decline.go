package pipeline

import (
	"sort"

	"go-school-projections/internal/model"
)

// Decline categories for the change at the first horizon
const (
	CategoryNoData           = "No data"
	CategoryStrongDecline    = "Strong Decline (< -10%)"
	CategoryModerateDecline  = "Moderate Decline (0 to -10%)"
	CategoryModerateGrowth   = "Moderate Growth (0 to 20%)"
	CategoryStrongGrowth     = "Strong Growth (20 to 50%)"
	CategoryVeryStrongGrowth = "Very Strong Growth (> 50%)"
)

// Categories lists the categories from strongest decline to strongest growth.
var Categories = []string{
	CategoryStrongDecline,
	CategoryModerateDecline,
	CategoryModerateGrowth,
	CategoryStrongGrowth,
	CategoryVeryStrongGrowth,
	CategoryNoData,
}

// Categorize buckets a percentage change.
func Categorize(pct model.Float) string {
	switch {
	case !pct.Valid:
		return CategoryNoData
	case pct.Value < -10:
		return CategoryStrongDecline
	case pct.Value < 0:
		return CategoryModerateDecline
	case pct.Value < 20:
		return CategoryModerateGrowth
	case pct.Value < 50:
		return CategoryStrongGrowth
	default:
		return CategoryVeryStrongGrowth
	}
}

// DeclineResult holds one statistic per region with complete data and the
// regions that had to be excluded
type DeclineResult struct {
	Statistics []model.DeclineStatistic
	Excluded   []error
}

// ComputeDecline compares each region's central school estimate at the two
// horizons against the baseline. Regions missing any of the three estimates,
// or whose baseline is zero, are excluded with MissingHorizonDataError.
// Statistics are sorted by percentage change at the first horizon, ascending,
// ties broken by region name.
func ComputeDecline(rows []model.ProjectionRow, h model.Horizons) DeclineResult {
	type point struct {
		base, h1, h2 model.Float
	}
	var order []string
	points := make(map[string]*point)
	for _, r := range rows {
		p, ok := points[r.Region]
		if !ok {
			p = &point{}
			points[r.Region] = p
			order = append(order, r.Region)
		}
		switch r.Year {
		case h.Baseline:
			p.base = r.ScuoleHat
		case h.H1:
			p.h1 = r.ScuoleHat
		case h.H2:
			p.h2 = r.ScuoleHat
		}
	}
	sort.Strings(order)

	var res DeclineResult
	for _, region := range order {
		p := points[region]
		switch {
		case !p.base.Valid || p.base.Value == 0:
			res.Excluded = append(res.Excluded, &model.MissingHorizonDataError{Region: region, Year: h.Baseline})
			continue
		case !p.h1.Valid:
			res.Excluded = append(res.Excluded, &model.MissingHorizonDataError{Region: region, Year: h.H1})
			continue
		case !p.h2.Valid:
			res.Excluded = append(res.Excluded, &model.MissingHorizonDataError{Region: region, Year: h.H2})
			continue
		}

		change1 := model.Sub(p.h1, p.base)
		change2 := model.Sub(p.h2, p.base)
		pct1 := model.Some(100 * change1.Value / p.base.Value)
		pct2 := model.Some(100 * change2.Value / p.base.Value)
		res.Statistics = append(res.Statistics, model.DeclineStatistic{
			Region:      region,
			Baseline:    p.base.Value,
			AtH1:        p.h1.Value,
			AtH2:        p.h2.Value,
			ChangeH1:    change1.Value,
			PctChangeH1: pct1.Value,
			ChangeH2:    change2.Value,
			PctChangeH2: pct2.Value,
			Category:    Categorize(pct1),
		})
	}
	SortStatistics(res.Statistics)
	return res
}

// SortStatistics orders by PctChangeH1 ascending, then region name.
func SortStatistics(stats []model.DeclineStatistic) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].PctChangeH1 != stats[j].PctChangeH1 {
			return stats[i].PctChangeH1 < stats[j].PctChangeH1
		}
		return stats[i].Region < stats[j].Region
	})
}

// TopDecliners returns up to n regions with the largest decline.
func TopDecliners(stats []model.DeclineStatistic, n int) []model.DeclineStatistic {
	sorted := append([]model.DeclineStatistic(nil), stats...)
	SortStatistics(sorted)
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// TopGrowers returns up to n regions with the largest growth, largest first.
func TopGrowers(stats []model.DeclineStatistic, n int) []model.DeclineStatistic {
	sorted := append([]model.DeclineStatistic(nil), stats...)
	SortStatistics(sorted)
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// CountByCategory tallies statistics per category.
func CountByCategory(stats []model.DeclineStatistic) map[string]int {
	counts := make(map[string]int, len(Categories))
	for _, s := range stats {
		counts[s.Category]++
	}
	return counts
}
