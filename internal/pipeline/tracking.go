package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-school-projections/internal/model"

	"go.uber.org/zap"
)

// Recorder persists run progress and results. The sqlite store implements it;
// a nil Recorder disables persistence.
type Recorder interface {
	CreateRun(ctx context.Context, run model.Run) error
	FinishRun(ctx context.Context, run model.Run) error
	SaveStageProgress(ctx context.Context, runID string, m model.StageMetrics) error
	SaveRunError(ctx context.Context, runID string, e model.ErrorDetail) error
	SaveProjections(ctx context.Context, runID string, rows []model.ProjectionRow) error
	SaveRatios(ctx context.Context, runID string, ratios []model.RatioRecord) error
	SaveStatistics(ctx context.Context, runID string, stats []model.DeclineStatistic) error
	SaveOutputs(ctx context.Context, runID string, outputs []model.ExportResult) error
}

// PipelineTracker collects stage metrics and non-fatal errors for one run
type PipelineTracker struct {
	RunID    string
	logger   *zap.Logger
	recorder Recorder

	mu     sync.Mutex
	stages []model.StageMetrics
	errors []model.ErrorDetail
}

// NewPipelineTracker creates a tracker; recorder may be nil
func NewPipelineTracker(runID string, logger *zap.Logger, recorder Recorder) *PipelineTracker {
	return &PipelineTracker{RunID: runID, logger: logger, recorder: recorder}
}

// StageTimer is returned by StartStage and closed with Done or Fail
type StageTimer struct {
	tracker *PipelineTracker
	metrics model.StageMetrics
}

// StartStage marks a stage as running
func (pt *PipelineTracker) StartStage(ctx context.Context, stage string, rowsIn int) *StageTimer {
	m := model.StageMetrics{Stage: stage, Status: model.StatusRunning, RowsIn: rowsIn, StartTime: time.Now().UTC()}
	pt.logger.Debug("stage started", zap.String("stage", stage), zap.Int("rows_in", rowsIn))
	pt.persistStage(ctx, m)
	return &StageTimer{tracker: pt, metrics: m}
}

// Done completes the stage with its output and dropped row counts
func (st *StageTimer) Done(ctx context.Context, rowsOut, dropped int) model.StageMetrics {
	return st.finish(ctx, model.StatusCompleted, rowsOut, dropped)
}

// Fail closes the stage as failed
func (st *StageTimer) Fail(ctx context.Context, err error) model.StageMetrics {
	st.tracker.logger.Error("stage failed", zap.String("stage", st.metrics.Stage), zap.Error(err))
	return st.finish(ctx, model.StatusFailed, 0, 0)
}

func (st *StageTimer) finish(ctx context.Context, status string, rowsOut, dropped int) model.StageMetrics {
	end := time.Now().UTC()
	m := st.metrics
	m.Status = status
	m.RowsOut = rowsOut
	m.Dropped = dropped
	m.EndTime = &end
	m.Duration = end.Sub(m.StartTime)

	pt := st.tracker
	pt.mu.Lock()
	m.ErrorCount = pt.countStageErrors(m.Stage)
	pt.stages = append(pt.stages, m)
	pt.mu.Unlock()

	pt.logger.Info("stage completed",
		zap.String("stage", m.Stage),
		zap.String("status", status),
		zap.Int("rows_in", m.RowsIn),
		zap.Int("rows_out", rowsOut),
		zap.Int("dropped", dropped),
		zap.Int("errors", m.ErrorCount),
		zap.Duration("duration", m.Duration),
	)
	pt.persistStage(ctx, m)
	return m
}

// RecordError stores a non-fatal error raised by a stage. Per-region errors
// keep their kind and region; anything else is recorded as "stage_error".
func (pt *PipelineTracker) RecordError(ctx context.Context, stage string, err error) {
	detail := model.ErrorDetail{
		Stage:     stage,
		Kind:      "stage_error",
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	if re, ok := model.AsRegionError(err); ok {
		detail.Kind = re.Kind()
		detail.Region = re.RegionName()
	}
	var mh *model.MissingHorizonDataError
	if errors.As(err, &mh) {
		detail.Year = mh.Year
	}
	detail.Severity = determineSeverity(detail.Kind)

	pt.mu.Lock()
	pt.errors = append(pt.errors, detail)
	pt.mu.Unlock()

	pt.logger.Warn("non-fatal error",
		zap.String("stage", stage),
		zap.String("kind", detail.Kind),
		zap.String("region", detail.Region),
		zap.Error(err),
	)
	if pt.recorder != nil {
		if err := pt.recorder.SaveRunError(ctx, pt.RunID, detail); err != nil {
			pt.logger.Error("failed to persist run error", zap.Error(err))
		}
	}
}

// RecordErrors records every error in errs
func (pt *PipelineTracker) RecordErrors(ctx context.Context, stage string, errs []error) {
	for _, err := range errs {
		pt.RecordError(ctx, stage, err)
	}
}

// Stages returns a copy of the completed stage metrics
func (pt *PipelineTracker) Stages() []model.StageMetrics {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return append([]model.StageMetrics(nil), pt.stages...)
}

// Errors returns a copy of the recorded errors
func (pt *PipelineTracker) Errors() []model.ErrorDetail {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return append([]model.ErrorDetail(nil), pt.errors...)
}

func (pt *PipelineTracker) countStageErrors(stage string) int {
	n := 0
	for _, e := range pt.errors {
		if e.Stage == stage {
			n++
		}
	}
	return n
}

func (pt *PipelineTracker) persistStage(ctx context.Context, m model.StageMetrics) {
	if pt.recorder == nil {
		return
	}
	if err := pt.recorder.SaveStageProgress(ctx, pt.RunID, m); err != nil {
		pt.logger.Error("failed to persist stage progress", zap.String("stage", m.Stage), zap.Error(err))
	}
}

// determineSeverity ranks error kinds: a skipped region loses output, an
// unmapped code only loses input rows.
func determineSeverity(kind string) string {
	switch kind {
	case model.KindInsufficientHistory, model.KindMissingHorizonData:
		return "medium"
	case model.KindUnmappedRegionCode:
		return "low"
	default:
		return "high"
	}
}
