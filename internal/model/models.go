package model

// Metric types carried by the long school table
const (
	MetricSchools    = "SCHO"
	MetricEnrollment = "ENR"
)

// Observation is one row of the long-format school statistics table
type Observation struct {
	AreaCode    string `json:"ref_area"`
	Sex         string `json:"sex"`
	Citizenship string `json:"citizenship"`
	Management  string `json:"type_school_management"`
	MetricType  string `json:"data_type"`
	Year        int    `json:"year"`
	Value       Float  `json:"value"`
}

// SchoolRow is the wide school table keyed by (Region, Year)
type SchoolRow struct {
	Region      string `json:"region"`
	AreaCode    string `json:"area_code"`
	Year        int    `json:"year"`
	SchoolCount Float  `json:"school_count"`
	Enrollment  Float  `json:"enrollment"`
}

// PopulationRow is one (region, year) count of children aged 6 to 10
type PopulationRow struct {
	Region        string `json:"region"`
	Year          int    `json:"year"`
	Children6to10 Float  `json:"children_6_10"`
}

// RegionYearRecord is the merged row the projector works on
type RegionYearRecord struct {
	Region               string `json:"region"`
	Year                 int    `json:"year"`
	SchoolCount          Float  `json:"school_count"`
	Enrollment           Float  `json:"enrollment"`
	ChildPopulation6to10 Float  `json:"children_6_10"`
	IsProjected          bool   `json:"is_projected"`
}

// Historical reports whether the row carries an observed school count.
func (r RegionYearRecord) Historical() bool { return r.SchoolCount.Valid }

// RatioRecord holds the per-region enrollment-per-school summary
type RatioRecord struct {
	Region  string  `json:"region"`
	Min     float64 `json:"ratio_min"`
	Median  float64 `json:"ratio_median"`
	Max     float64 `json:"ratio_max"`
	Samples int     `json:"samples"`
}

// ProjectionRow is a merged row augmented with ratios and school estimates
type ProjectionRow struct {
	RegionYearRecord
	EnrollmentProxy Float `json:"enrollment_proxy"`
	Ratio           Float `json:"ratio"`
	RatioHat        Float `json:"ratio_hat"`
	RatioLCL        Float `json:"ratio_lcl"`
	RatioUCL        Float `json:"ratio_ucl"`
	ScuoleHat       Float `json:"scuole_hat"`
	ScuoleLCL       Float `json:"scuole_lcl"`
	ScuoleUCL       Float `json:"scuole_ucl"`
}

// DeclineStatistic compares projected school counts against the baseline year
type DeclineStatistic struct {
	Region      string  `json:"region"`
	Baseline    float64 `json:"baseline"`
	AtH1        float64 `json:"at_h1"`
	AtH2        float64 `json:"at_h2"`
	ChangeH1    float64 `json:"change_h1"`
	PctChangeH1 float64 `json:"pct_change_h1"`
	ChangeH2    float64 `json:"change_h2"`
	PctChangeH2 float64 `json:"pct_change_h2"`
	Category    string  `json:"category"`
}

// Horizons names the reference years of a run
type Horizons struct {
	Cutoff   int `json:"cutoff_year"`
	Baseline int `json:"baseline_year"`
	H1       int `json:"horizon1"`
	H2       int `json:"horizon2"`
}
