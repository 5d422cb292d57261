package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go-school-projections/internal/model"
	"go-school-projections/pkg/utils"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const schoolsFixture = `REF_AREA,SEX,CITIZENSHIP,TYPE_SCHOOL_MANAGEMENT,DATA_TYPE,obsTime,obsValue
ITI4,T,TOTAL,ALL,SCHO,2015,1000
ITI4,T,TOTAL,ALL,ENR,2015,300000
ITI4,T,TOTAL,ALL,SCHO,2020,980
ITI4,T,TOTAL,ALL,ENR,2020,280000
ITI4,T,TOTAL,ALL,SCHO,2022,1000
ITI4,M,TOTAL,ALL,SCHO,2022,400
ITF2,T,TOTAL,ALL,ENR,2020,12000
ITH,T,TOTAL,ALL,SCHO,2020,700
ITG2,T,TOTAL,ALL,SCHO,2018,500
ITG2,T,TOTAL,ALL,ENR,2018,50000
ITG2,T,TOTAL,ALL,SCHO,2022,480
`

const populationFixture = `Region,Year,Children_6_10
Lazio,2050,250000
Lazio,2080,200000
Molise,2050,9000
Sardegna,2050,40000
Atlantide,2050,1
`

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	schools := filepath.Join(dir, "elementari.csv")
	pop := filepath.Join(dir, "pop.csv")
	require.NoError(t, os.WriteFile(schools, []byte(schoolsFixture), 0o644))
	require.NoError(t, os.WriteFile(pop, []byte(populationFixture), 0o644))
	return schools, pop
}

func testOptions(t *testing.T, outDir string) Options {
	schools, pop := writeFixtures(t)
	return Options{
		RunID:           "run-test",
		SchoolsPath:     schools,
		PopulationPath:  pop,
		Horizons:        testHorizons,
		Workers:         3,
		Outputs:         utils.NewOutputManager(outDir, false),
		ProjectionsFile: "school_projections_by_region.csv",
		StatisticsFile:  "regional_school_decline_statistics.csv",
	}
}

type memRecorder struct {
	mu          sync.Mutex
	runs        map[string]model.Run
	stages      []model.StageMetrics
	errors      []model.ErrorDetail
	projections int
	ratios      int
	stats       int
	outputs     []model.ExportResult
}

func newMemRecorder() *memRecorder { return &memRecorder{runs: map[string]model.Run{}} }

func (m *memRecorder) CreateRun(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memRecorder) FinishRun(_ context.Context, run model.Run) error {
	return m.CreateRun(context.Background(), run)
}

func (m *memRecorder) SaveStageProgress(_ context.Context, _ string, s model.StageMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, s)
	return nil
}

func (m *memRecorder) SaveRunError(_ context.Context, _ string, e model.ErrorDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, e)
	return nil
}

func (m *memRecorder) SaveProjections(_ context.Context, _ string, rows []model.ProjectionRow) error {
	m.projections = len(rows)
	return nil
}

func (m *memRecorder) SaveRatios(_ context.Context, _ string, ratios []model.RatioRecord) error {
	m.ratios = len(ratios)
	return nil
}

func (m *memRecorder) SaveStatistics(_ context.Context, _ string, stats []model.DeclineStatistic) error {
	m.stats = len(stats)
	return nil
}

func (m *memRecorder) SaveOutputs(_ context.Context, _ string, outputs []model.ExportResult) error {
	m.outputs = outputs
	return nil
}

type failingReporter struct{}

func (failingReporter) Name() string { return "broken" }

func (failingReporter) Render(context.Context, *model.RunReport, *utils.OutputManager) ([]model.ExportResult, error) {
	return nil, errors.New("no fonts")
}

func TestRunEndToEnd(t *testing.T) {
	out := t.TempDir()
	rec := newMemRecorder()
	runner := &Runner{Logger: zap.NewNop(), Recorder: rec, Reporters: []Reporter{failingReporter{}}}

	report, err := runner.Run(context.Background(), testOptions(t, out))
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, report.Run.Status)
	assert.Equal(t, model.StatusCompleted, rec.runs["run-test"].Status)

	// Lazio and Sardegna are projected; Molise has no school count at all.
	require.Len(t, report.Ratios, 2)
	regions := map[string]bool{}
	for _, p := range report.Projections {
		regions[p.Region] = true
	}
	assert.Equal(t, map[string]bool{"Lazio": true, "Sardegna": true}, regions)

	// Sardegna lacks a 2080 population figure.
	require.Len(t, report.Statistics, 1)
	lazio := report.Statistics[0]
	assert.Equal(t, "Lazio", lazio.Region)
	assert.Equal(t, 1000.0, lazio.Baseline)
	assert.InDelta(t, 853.66, lazio.AtH1, 0.01)

	kinds := map[string][]string{}
	for _, e := range report.Errors {
		kinds[e.Kind] = append(kinds[e.Kind], e.Region)
	}
	assert.ElementsMatch(t, []string{"ITH", "Atlantide"}, kinds[model.KindUnmappedRegionCode])
	assert.Equal(t, []string{"Molise"}, kinds[model.KindInsufficientHistory])
	assert.Equal(t, []string{"Sardegna"}, kinds[model.KindMissingHorizonData])
	assert.Len(t, kinds["stage_error"], 1)
	assert.Equal(t, 2, report.Run.Skipped)

	assert.Equal(t, len(report.Projections), rec.projections)
	assert.Equal(t, 1, rec.stats)
	assert.Equal(t, 2, rec.ratios)
	assert.Len(t, rec.errors, len(report.Errors))
	assert.NotEmpty(t, rec.stages)

	for _, name := range []string{"school_projections_by_region.csv", "regional_school_decline_statistics.csv"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	outA, outB := t.TempDir(), t.TempDir()
	opts := testOptions(t, outA)

	runner := &Runner{Logger: zap.NewNop()}
	_, err := runner.Run(context.Background(), opts)
	require.NoError(t, err)

	opts.Outputs = utils.NewOutputManager(outB, false)
	opts.Workers = 1
	_, err = runner.Run(context.Background(), opts)
	require.NoError(t, err)

	for _, name := range []string{opts.ProjectionsFile, opts.StatisticsFile} {
		a, err := os.ReadFile(filepath.Join(outA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(outB, name))
		require.NoError(t, err)
		if diff := cmp.Diff(string(a), string(b)); diff != "" {
			t.Errorf("%s differs between runs (-first +second):\n%s", name, diff)
		}
	}
}

func TestRunMissingInputFails(t *testing.T) {
	rec := newMemRecorder()
	opts := testOptions(t, t.TempDir())
	opts.SchoolsPath = filepath.Join(t.TempDir(), "nope.csv")

	_, err := (&Runner{Logger: zap.NewNop(), Recorder: rec}).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, rec.runs["run-test"].Status)
	assert.Contains(t, rec.runs["run-test"].Error, "loading school data")
}

func TestProcessRegionFilter(t *testing.T) {
	schools, pop := writeFixtures(t)
	obs, err := LoadObservations(context.Background(), schools, zap.NewNop())
	require.NoError(t, err)
	popRows, err := LoadPopulation(context.Background(), pop, zap.NewNop())
	require.NoError(t, err)

	runner := &Runner{Logger: zap.NewNop()}
	tracker := NewPipelineTracker("r", zap.NewNop(), nil)
	report, err := runner.Process(context.Background(), tracker, obs, popRows, Options{
		Horizons: testHorizons,
		Workers:  2,
		Regions:  RegionFilter{"Lazio"},
	})
	require.NoError(t, err)
	for _, p := range report.Projections {
		assert.Equal(t, "Lazio", p.Region)
	}

	_, err = runner.Process(context.Background(), tracker, obs, popRows, Options{
		Horizons: testHorizons,
		Workers:  2,
		Regions:  RegionFilter{"Atlantide"},
	})
	assert.ErrorIs(t, err, model.ErrNoData)
}
