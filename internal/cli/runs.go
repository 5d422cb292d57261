package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-school-projections/internal/api"
	"go-school-projections/internal/api/handler"
	"go-school-projections/internal/report"
	"go-school-projections/internal/store"
	"go-school-projections/pkg/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoDatabase = errors.New("no database configured (set --database)")

func requireStore(a *app) (*store.Store, error) {
	st, err := openStore(a.cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNoDatabase
	}
	return st, nil
}

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Re-render the summary, workbook and charts of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromContext(cmd.Context())
			st, err := requireStore(a)
			if err != nil {
				return err
			}
			defer st.Close()
			return rerender(cmd.Context(), cmd, a, st, args[0])
		},
	}
	cmd.Flags().String("out", "", "output directory")
	cmd.Flags().Bool("charts", true, "render PNG charts")
	cmd.Flags().Int("top", 10, "number of regions in the console table and charts")
	return cmd
}

func rerender(ctx context.Context, cmd *cobra.Command, a *app, st *store.Store, runID string) error {
	rep, err := st.LoadReport(ctx, runID)
	if err != nil {
		return err
	}
	outputs := utils.NewOutputManager(a.cfg.Outputs.Dir, true)

	var results []error
	for _, r := range reporters(a.cfg) {
		res, rerr := r.Render(ctx, rep, outputs)
		if len(res) > 0 {
			if err := st.SaveOutputs(ctx, runID, res); err != nil {
				return err
			}
		}
		for _, o := range res {
			if o.Success {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.Path)
			}
		}
		if rerr != nil {
			a.logger.Warn("reporter failed", zap.String("reporter", r.Name()), zap.Error(rerr))
			results = append(results, fmt.Errorf("%s: %w", r.Name(), rerr))
		}
	}
	report.PrintRunSummary(cmd.OutOrStdout(), rep, a.cfg.Outputs.TopN)
	return errors.Join(results...)
}

func newRunsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := fromContext(cmd.Context())
			st, err := requireStore(a)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Status", "Started", "Duration", "Baseline", "Horizons", "Regions", "Skipped"})
			for _, r := range runs {
				duration := "-"
				if r.FinishedAt != nil {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				t.AppendRow(table.Row{
					r.ID, r.Status, r.StartedAt.Format(time.RFC3339), duration,
					r.Horizons.Baseline, fmt.Sprintf("%d, %d", r.Horizons.H1, r.Horizons.H2),
					r.Regions, r.Skipped,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 for all)")
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over the read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := fromContext(cmd.Context())
			st, err := requireStore(a)
			if err != nil {
				return err
			}
			defer st.Close()
			return Serve(cmd.Context(), a.cfg.Server.Addr, st, utils.NewOutputManager(a.cfg.Outputs.Dir, true), a.logger)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().String("out", "", "output directory of the runs")
	return cmd
}

// Serve runs the HTTP API until ctx is cancelled.
func Serve(ctx context.Context, addr string, st handler.RunReader, outputs *utils.OutputManager, logger *zap.Logger) error {
	r := api.NewRouter(handler.NewRunHandler(st, outputs, logger))
	return r.Start(ctx, addr, 10*time.Second)
}
