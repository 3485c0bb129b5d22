package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/di"
	"github.com/cramwell/backend-go/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cramwell",
		Short:         "Ingest course documents and answer questions from them",
		Long:          "cramwell indexes student course documents per notebook and answers questions, sample exams, summaries and flashcards from them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides CONFIG_FILE)")

	root.AddCommand(
		newIngestCmd(),
		newExtractCmd(),
		newAskCmd(),
		newGenerateCmd(),
		newInvalidateCmd(),
		newPurgeCmd(),
		newWorkerCmd(),
		newMCPCmd(),
	)
	return root
}

// app is the per-command composition root.
type app struct {
	cfg       *config.Config
	loader    *config.ConfigLoader
	log       *zap.Logger
	container *dig.Container
	resources *di.Resources
}

func bootstrap() (*app, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, err
		}
	}

	loader := config.NewConfigLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(cfg.Log.Level, cfg.App.Env); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.GetLogger()

	container, err := di.InitContainer(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, loader: loader, log: log, container: container}
	if err := container.Invoke(func(res *di.Resources) { a.resources = res }); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) invoke(fn interface{}) error {
	if err := a.container.Invoke(fn); err != nil {
		return dig.RootCause(err)
	}
	return nil
}

func (a *app) close() {
	if err := a.resources.Close(); err != nil {
		a.log.Warn("resource shutdown failed", zap.Error(err))
	}
	logger.Sync()
}

// run bootstraps, calls fn and always releases resources.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
