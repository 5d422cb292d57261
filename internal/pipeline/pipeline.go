package pipeline

import (
	"context"
	"fmt"
	"time"

	"go-school-projections/internal/logging"
	"go-school-projections/internal/model"
	"go-school-projections/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage names recorded in metrics and stage_progress
const (
	StageIngest  = "ingest"
	StageFilter  = "filter"
	StageReshape = "reshape"
	StageMerge   = "merge"
	StageProject = "project"
	StageDecline = "decline"
	StageExport  = "export"
	StageReport  = "report"
)

// Options configures one run
type Options struct {
	RunID          string
	SchoolsPath    string
	PopulationPath string
	Horizons       model.Horizons
	Workers        int
	Regions        RegionFilter
	Timeout        time.Duration
	// ConfigSnapshot is stored with the run for later inspection
	ConfigSnapshot string

	Outputs         *utils.OutputManager
	ProjectionsFile string
	StatisticsFile  string
	JSON            bool
}

// Reporter renders derived outputs (charts, workbooks, summaries) from a
// finished report
type Reporter interface {
	Name() string
	Render(ctx context.Context, report *model.RunReport, outputs *utils.OutputManager) ([]model.ExportResult, error)
}

// Runner executes the pipeline stages in order
type Runner struct {
	Logger    *zap.Logger
	Recorder  Recorder
	Reporters []Reporter
}

// ------------------- Pipeline Runner -------------------

// Run loads both inputs, computes projections and decline statistics, and
// writes every output. Per-region failures are recorded and skipped; only
// unreadable inputs, cancellation or persistence failures abort the run.
func (r *Runner) Run(ctx context.Context, opts Options) (report *model.RunReport, err error) {
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := r.Logger.With(zap.String("run_id", opts.RunID))
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	run := model.Run{
		ID:        opts.RunID,
		Status:    model.StatusRunning,
		Horizons:  opts.Horizons,
		Config:    opts.ConfigSnapshot,
		StartedAt: time.Now().UTC(),
	}
	if r.Recorder != nil {
		if err := r.Recorder.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}
	logger.Info("pipeline started",
		zap.String("schools", opts.SchoolsPath),
		zap.String("population", opts.PopulationPath),
		zap.Int("baseline", opts.Horizons.Baseline),
	)

	tracker := NewPipelineTracker(opts.RunID, logger, r.Recorder)

	defer func() {
		finished := time.Now().UTC()
		run.FinishedAt = &finished
		if err != nil {
			run.Status = model.StatusFailed
			run.Error = err.Error()
		} else {
			run.Status = model.StatusCompleted
		}
		if report != nil {
			report.Run = run
			report.Stages = tracker.Stages()
			report.Errors = tracker.Errors()
		}
		if r.Recorder != nil {
			// the caller's context may already be cancelled
			if ferr := r.Recorder.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
				logger.Error("failed to finalize run", zap.Error(ferr))
			}
		}
		logger.Info("pipeline finished",
			zap.String("status", run.Status),
			zap.Int("regions", run.Regions),
			zap.Int("skipped", run.Skipped),
			zap.Duration("duration", finished.Sub(run.StartedAt)),
		)
	}()

	// --- INGESTION STAGE ---
	stage := tracker.StartStage(ctx, StageIngest, 0)
	obs, err := LoadObservations(ctx, opts.SchoolsPath, logging.Stage(r.Logger, opts.RunID, StageIngest))
	if err != nil {
		stage.Fail(ctx, err)
		return nil, fmt.Errorf("loading school data: %w", err)
	}
	pop, err := LoadPopulation(ctx, opts.PopulationPath, logging.Stage(r.Logger, opts.RunID, StageIngest))
	if err != nil {
		stage.Fail(ctx, err)
		return nil, fmt.Errorf("loading population data: %w", err)
	}
	stage.Done(ctx, len(obs)+len(pop), 0)

	report, err = r.Process(ctx, tracker, obs, pop, opts)
	if err != nil {
		return nil, err
	}
	run.Regions = len(report.Statistics)
	run.Skipped = len((&model.RunReport{Errors: tracker.Errors()}).SkippedRegions())
	report.Run = run

	// --- EXPORT STAGE ---
	stage = tracker.StartStage(ctx, StageExport, len(report.Projections)+len(report.Statistics))
	em := &ExportManager{
		RunID:           opts.RunID,
		Outputs:         opts.Outputs,
		Recorder:        r.Recorder,
		Logger:          logging.Stage(r.Logger, opts.RunID, StageExport),
		ProjectionsFile: opts.ProjectionsFile,
		StatisticsFile:  opts.StatisticsFile,
		JSON:            opts.JSON,
	}
	report.Outputs = em.Export(ctx, report)
	if r.Recorder != nil {
		if err := r.Recorder.SaveRatios(ctx, opts.RunID, report.Ratios); err != nil {
			stage.Fail(ctx, err)
			return nil, fmt.Errorf("saving ratios: %w", err)
		}
	}
	if failed := failedOutputs(report.Outputs); failed > 0 {
		err := fmt.Errorf("%d of %d exports failed", failed, len(report.Outputs))
		stage.Fail(ctx, err)
		return nil, err
	}
	stage.Done(ctx, len(report.Outputs), 0)

	// --- REPORT STAGE ---
	if len(r.Reporters) > 0 {
		stage = tracker.StartStage(ctx, StageReport, len(report.Statistics))
		rendered := 0
		for _, rep := range r.Reporters {
			results, rerr := rep.Render(ctx, report, opts.Outputs)
			report.Outputs = append(report.Outputs, results...)
			if rerr != nil {
				// a broken chart must not lose the computed tables
				tracker.RecordError(ctx, StageReport, fmt.Errorf("%s: %w", rep.Name(), rerr))
				continue
			}
			rendered += len(results)
		}
		stage.Done(ctx, rendered, 0)
	}

	if r.Recorder != nil {
		if err := r.Recorder.SaveOutputs(ctx, opts.RunID, report.Outputs); err != nil {
			return nil, fmt.Errorf("saving outputs: %w", err)
		}
	}
	return report, nil
}

// Process runs the in-memory stages on already loaded inputs: filter,
// reshape, merge, project and decline. It performs no I/O besides tracking.
func (r *Runner) Process(ctx context.Context, tracker *PipelineTracker, obs []model.Observation, pop []model.PopulationRow, opts Options) (*model.RunReport, error) {
	h := opts.Horizons

	// --- FILTER STAGE ---
	stage := tracker.StartStage(ctx, StageFilter, len(obs))
	filtered := FilterObservations(obs, DefaultFilterRules)
	stage.Done(ctx, len(filtered.Kept), filtered.Dropped)

	// --- RESHAPE STAGE ---
	stage = tracker.StartStage(ctx, StageReshape, len(filtered.Kept))
	pivot := PivotObservations(filtered.Kept)
	tracker.RecordErrors(ctx, StageReshape, pivot.Unmapped)
	stage.Done(ctx, len(pivot.Rows), pivot.Dropped)

	// --- MERGE STAGE ---
	stage = tracker.StartStage(ctx, StageMerge, len(pivot.Rows)+len(pop))
	merged := Merge(pivot.Rows, pop, h.Baseline)
	tracker.RecordErrors(ctx, StageMerge, merged.Unmapped)
	records := merged.Records
	if len(opts.Regions) > 0 {
		records = records[:0:0]
		for _, rec := range merged.Records {
			if opts.Regions.Allows(rec.Region) {
				records = append(records, rec)
			}
		}
	}
	stage.Done(ctx, len(records), len(merged.Records)-len(records))
	if len(records) == 0 {
		return nil, fmt.Errorf("merged table is empty: %w", model.ErrNoData)
	}

	// --- PROJECTION STAGE ---
	stage = tracker.StartStage(ctx, StageProject, len(records))
	projected, err := Project(ctx, records, h.Cutoff, opts.Workers)
	if err != nil {
		stage.Fail(ctx, err)
		return nil, fmt.Errorf("projecting: %w", err)
	}
	tracker.RecordErrors(ctx, StageProject, projected.Skipped)
	stage.Done(ctx, len(projected.Rows), len(records)-len(projected.Rows))

	// --- DECLINE STAGE ---
	stage = tracker.StartStage(ctx, StageDecline, len(projected.Ratios))
	decline := ComputeDecline(projected.Rows, h)
	tracker.RecordErrors(ctx, StageDecline, decline.Excluded)
	stage.Done(ctx, len(decline.Statistics), len(decline.Excluded))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &model.RunReport{
		Run:         model.Run{ID: tracker.RunID, Horizons: h},
		Stages:      tracker.Stages(),
		Errors:      tracker.Errors(),
		Projections: projected.Rows,
		Ratios:      projected.Ratios,
		Statistics:  decline.Statistics,
	}, nil
}

func failedOutputs(results []model.ExportResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
