// Package cli provides the schoolproj command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"go-school-projections/internal/config"
	"go-school-projections/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information (set at build time).
var Version = "0.1.0"

// appKey is used to store the loaded config and logger in the context.
type appKey struct{}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func fromContext(ctx context.Context) *app {
	if a, ok := ctx.Value(appKey{}).(*app); ok {
		return a
	}
	return &app{logger: zap.NewNop()}
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "schoolproj",
		Short: "Regional primary-school projections for Italy",
		Long: `schoolproj projects the number of primary schools in each Italian region
from ISTAT school statistics and children-population projections, using the
historical ratio of enrollment per school.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey{}, &app{cfg: cfg, logger: logger}))
			logger.Debug("configuration loaded", zap.String("command", cmd.Name()), zap.String("database", cfg.Database))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			// stderr does not support fsync on every platform
			_ = fromContext(cmd.Context()).logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	pf.BoolP("verbose", "v", false, "verbose output (debug logging)")
	pf.String("database", config.DefaultDatabase, "path to the SQLite run database (empty disables persistence)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "console", "log format (console|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"console", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newChildrenCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
