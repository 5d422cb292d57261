package cli

import (
	"fmt"

	"go-school-projections/internal/istat"
	"go-school-projections/internal/population"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the ISTAT school statistics",
		Long: `Download the primary-school dataflow from the ISTAT SDMX web service and
write it as CSV. SDMX-CSV is tried first, then SDMX-JSON, each against every
configured dataflow ID with retries. Observations before --min-year are
dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := fromContext(cmd.Context())
			cfg := a.cfg.Istat

			client := istat.NewClient(cfg.BaseURL, cfg.Dataflows, cfg.Timeout, cfg.Retry, a.logger)
			res, err := client.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			ds := res.Dataset.FilterMinYear(cfg.MinYear)
			if err := istat.WriteFile(cfg.Output, ds); err != nil {
				return err
			}
			a.logger.Info("school statistics saved",
				zap.String("path", cfg.Output),
				zap.String("strategy", res.Strategy),
				zap.String("dataflow", res.Dataflow),
				zap.Int("rows", len(ds.Rows)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d rows (%s, %s) to %s\n", len(ds.Rows), res.Strategy, res.Dataflow, cfg.Output)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("istat-url", "", "base URL of the ISTAT SDMX REST service")
	f.Int("min-year", 2010, "drop observations before this year")
	f.String("output", "", "CSV file to write")
	return cmd
}

func newChildrenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "children",
		Short: "Build the children 6-10 table from ISTAT population projections",
		Long: `Read the per-region ISTAT population projection files
(it-Popolazione_per_eta_-_Regione_<Name>.csv) and sum the median scenario
over ages 6 to 10 for each region and year. Files that cannot be read are
reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := fromContext(cmd.Context())
			cfg := a.cfg

			res, err := population.CountDir(cmd.Context(), cfg.Inputs.PopulationDir, cfg.Inputs.PopulationGlob, cfg.Workers.Projection, a.logger)
			if err != nil {
				return err
			}
			if err := population.WriteFile(cfg.Inputs.Population, res.Rows); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %d rows from %d files to %s\n", len(res.Rows), res.Files, cfg.Inputs.Population)
			if len(res.Failed) > 0 {
				fmt.Fprintf(out, "Skipped files (%d):\n", len(res.Failed))
				for _, ferr := range res.Failed {
					fmt.Fprintf(out, "  - %v\n", ferr)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("population-dir", "", "directory holding the per-region projection files")
	f.String("population", "", "CSV file to write")
	f.Int("workers", 4, "files read in parallel")
	return cmd
}
