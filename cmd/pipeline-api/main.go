package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-school-projections/internal/cli"
	"go-school-projections/internal/config"
	"go-school-projections/internal/logging"
	"go-school-projections/internal/store"
	"go-school-projections/pkg/utils"

	"go.uber.org/zap"
)

//go:generate swag init -g main.go -d ./,../../internal/api -o ../../docs

// @title Regional School Projections API
// @version 1.0
// @description Read-only access to stored projection runs, their results and output files.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// file and SCHOOLPROJ_* environment only
	cfg, err := config.Load(os.Getenv("SCHOOLPROJ_CONFIG"), nil)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("serving runs", zap.String("database", st.Path()), zap.String("outputs", cfg.Outputs.Dir))
	return cli.Serve(ctx, cfg.Server.Addr, st, utils.NewOutputManager(cfg.Outputs.Dir, true), logger)
}
