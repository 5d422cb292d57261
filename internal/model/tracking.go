package model

import "time"

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one execution of the projection pipeline
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Horizons   Horizons   `json:"horizons"`
	Config     string     `json:"config,omitempty"` // JSON snapshot of the effective config
	Regions    int        `json:"regions"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StageMetrics captures timing and row counts for one pipeline stage
type StageMetrics struct {
	Stage      string        `json:"stage"`
	Status     string        `json:"status"`
	RowsIn     int           `json:"rows_in"`
	RowsOut    int           `json:"rows_out"`
	Dropped    int           `json:"dropped"`
	ErrorCount int           `json:"error_count"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ErrorDetail is a non-fatal problem recorded against a run
type ErrorDetail struct {
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Region    string    `json:"region,omitempty"`
	Year      int       `json:"year,omitempty"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// RunReport is the in-memory outcome of a run handed to the reporters
type RunReport struct {
	Run         Run                `json:"run"`
	Stages      []StageMetrics     `json:"stages"`
	Errors      []ErrorDetail      `json:"errors"`
	Projections []ProjectionRow    `json:"-"`
	Ratios      []RatioRecord      `json:"ratios"`
	Statistics  []DeclineStatistic `json:"statistics"`
	Outputs     []ExportResult     `json:"outputs"`
}

// SkippedRegions lists the distinct regions excluded by per-region errors.
func (r *RunReport) SkippedRegions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Errors {
		if e.Region == "" || seen[e.Region] {
			continue
		}
		if e.Kind == KindInsufficientHistory || e.Kind == KindMissingHorizonData {
			seen[e.Region] = true
			out = append(out, e.Region)
		}
	}
	return out
}

// ExportResult records one output written for a run. Path is a file path, or
// a table name when Type is "database".
type ExportResult struct {
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
