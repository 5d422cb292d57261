package pipeline

import (
	"sort"

	"go-school-projections/internal/model"
)

// SummarizeRatios computes min, median and max of a region's historical
// enrollment-per-school ratios. ok is false when no ratio is defined.
func SummarizeRatios(region string, ratios []float64) (model.RatioRecord, bool) {
	if len(ratios) == 0 {
		return model.RatioRecord{Region: region}, false
	}
	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)
	return model.RatioRecord{
		Region:  region,
		Min:     sorted[0],
		Median:  median(sorted),
		Max:     sorted[len(sorted)-1],
		Samples: len(sorted),
	}, true
}

// median of an already sorted, non-empty slice; even counts average the two
// middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// SortRatios orders ratio summaries by region name.
func SortRatios(rs []model.RatioRecord) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Region < rs[j].Region })
}
