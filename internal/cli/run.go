package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"go-school-projections/internal/config"
	"go-school-projections/internal/pipeline"
	"go-school-projections/internal/report"
	"go-school-projections/internal/store"
	"go-school-projections/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCommand() *cobra.Command {
	var (
		regions []string
		timeout string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the projection pipeline end to end",
		Long: `Load the school statistics and the population projections, estimate the
number of schools per region and year with confidence bounds, and write the
projection table, the decline statistics, the summary, the workbook and the
charts. The run is recorded in the database unless --database is empty.`,
		Example: `  # Run with the default inputs in the current directory
  schoolproj run

  # Only two regions, without charts
  schoolproj run --region Lazio --region Molise --charts=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, regions, utils.ParseDuration(timeout, 0))
		},
	}

	f := cmd.Flags()
	f.String("schools", "", "long-format school statistics CSV")
	f.String("population", "", "children 6-10 population CSV (Region,Year,Children_6_10)")
	f.String("out", "", "output directory")
	f.Bool("charts", true, "render PNG charts")
	f.Bool("json", false, "also write the run report as JSON")
	f.Int("top", 10, "number of regions in the console table and charts")
	f.Int("cutoff", config.DefaultCutoffYear, "years after this one form the ratio history")
	f.Int("baseline", config.DefaultBaselineYear, "reference year of the decline statistics")
	f.Int("horizon1", config.DefaultHorizon1, "first projection horizon")
	f.Int("horizon2", config.DefaultHorizon2, "second projection horizon")
	f.Int("workers", 4, "parallel projection workers")
	f.StringSliceVar(&regions, "region", nil, "restrict the run to these regions (repeatable)")
	f.StringVar(&timeout, "timeout", "", "abort the run after this duration, e.g. 5m")

	return cmd
}

// reporters lists the derived outputs enabled by the configuration
func reporters(cfg *config.Config) []pipeline.Reporter {
	reps := []pipeline.Reporter{
		&report.SummaryReporter{FileName: cfg.Outputs.Summary},
		&report.WorkbookReporter{FileName: cfg.Outputs.Workbook},
	}
	if cfg.Outputs.Charts {
		reps = append(reps, &report.ChartsReporter{TopN: cfg.Outputs.TopN})
	}
	return reps
}

// openStore opens the run database. An empty path disables persistence and
// returns a nil store.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Database == "" {
		return nil, nil
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Database, err)
	}
	return st, nil
}

func runPipeline(cmd *cobra.Command, regions []string, timeout time.Duration) error {
	a := fromContext(cmd.Context())
	cfg := a.cfg

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	runner := &pipeline.Runner{Logger: a.logger, Reporters: reporters(cfg)}
	if st != nil {
		defer st.Close()
		runner.Recorder = st
	}

	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config snapshot: %w", err)
	}

	outputs := utils.NewOutputManager(cfg.Outputs.Dir, true)
	rep, err := runner.Run(cmd.Context(), pipeline.Options{
		SchoolsPath:     cfg.Inputs.Schools,
		PopulationPath:  cfg.Inputs.Population,
		Horizons:        cfg.Model.Horizons(),
		Workers:         cfg.Workers.Projection,
		Regions:         pipeline.RegionFilter(regions),
		Timeout:         timeout,
		ConfigSnapshot:  string(snapshot),
		Outputs:         outputs,
		ProjectionsFile: cfg.Outputs.Projections,
		StatisticsFile:  cfg.Outputs.Statistics,
		JSON:            cfg.Outputs.JSON,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	report.PrintRunSummary(out, rep, cfg.Outputs.TopN)
	dir, err := outputs.RunDir(rep.Run.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nRun %s: %d regions projected, outputs in %s\n", rep.Run.ID, rep.Run.Regions, dir)
	for _, o := range rep.Outputs {
		if !o.Success {
			a.logger.Warn("output not written", zap.String("output", o.Name), zap.String("error", o.Error))
		}
	}
	return nil
}
