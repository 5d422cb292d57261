package pipeline

import (
	"strings"

	"go-school-projections/internal/model"
)

// FilterRules selects the rows of the long table that describe totals
type FilterRules struct {
	Sex         string
	Citizenship string
	Management  string
	MetricTypes []string
}

// DefaultFilterRules keeps both sexes, all citizenships and all management
// types, for the school count and enrollment metrics.
var DefaultFilterRules = FilterRules{
	Sex:         "T",
	Citizenship: "TOTAL",
	Management:  "ALL",
	MetricTypes: []string{model.MetricSchools, model.MetricEnrollment},
}

// FilterResult holds the kept rows and how many were dropped
type FilterResult struct {
	Kept    []model.Observation
	Dropped int
}

// FilterObservations keeps only rows matching every rule. Rows without a
// parseable year are dropped too. Dropped rows are not errors.
func FilterObservations(obs []model.Observation, rules FilterRules) FilterResult {
	res := FilterResult{Kept: make([]model.Observation, 0, len(obs))}
	for _, o := range obs {
		if validateObservation(o, rules) {
			res.Kept = append(res.Kept, o)
		} else {
			res.Dropped++
		}
	}
	return res
}

func validateObservation(o model.Observation, rules FilterRules) bool {
	if o.Year == 0 {
		return false
	}
	if strings.TrimSpace(o.Sex) != rules.Sex ||
		strings.TrimSpace(o.Citizenship) != rules.Citizenship ||
		strings.TrimSpace(o.Management) != rules.Management {
		return false
	}
	metric := strings.TrimSpace(o.MetricType)
	for _, m := range rules.MetricTypes {
		if metric == m {
			return true
		}
	}
	return false
}

// RegionFilter restricts a run to a subset of regions. Empty means all.
type RegionFilter []string

// Allows reports whether region passes the filter.
func (f RegionFilter) Allows(region string) bool {
	if len(f) == 0 {
		return true
	}
	for _, r := range f {
		if r == region {
			return true
		}
	}
	return false
}
