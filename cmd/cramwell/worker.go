package main

import (
	"context"
	"fmt"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/metrics"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume ingest jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if !a.cfg.Queue.Enabled {
					return fmt.Errorf("queue is disabled; set queue.enabled or KAFKA_BROKERS")
				}
				return a.invoke(func(cfg *config.Config, svc *services.IngestionService, monitor *services.MemoryMonitor, m *metrics.Metrics) error {
					consumer, err := kafka.NewConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.IngestTopic, a.log)
					if err != nil {
						return err
					}
					defer consumer.Close()

					a.watchConfig()

					g, gctx := errgroup.WithContext(ctx)
					g.Go(func() error {
						monitor.Run(gctx)
						return nil
					})
					startBackground(gctx, g, a, m)
					g.Go(func() error {
						return consumer.Run(gctx, svc.HandleJob)
					})

					a.log.Info("worker started", zap.String("topic", cfg.Queue.IngestTopic))
					return g.Wait()
				})
			})
		},
	}
}

// startBackground runs the metrics endpoint and backend health checks.
func startBackground(ctx context.Context, g *errgroup.Group, a *app, m *metrics.Metrics) {
	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return m.Serve(ctx, a.cfg.Metrics.Address, a.log)
		})
	}
	for _, hc := range a.resources.HealthChecks() {
		hc := hc
		g.Go(func() error {
			hc.Start(ctx)
			return nil
		})
	}
}

// watchConfig logs reloads of the config file.
func (a *app) watchConfig() {
	a.loader.RegisterCallback(func(oldConfig, newConfig *config.Config) error {
		a.log.Info("configuration reloaded",
			zap.String("old_log_level", oldConfig.Log.Level),
			zap.String("new_log_level", newConfig.Log.Level))
		return nil
	})
	if err := a.loader.StartWatching(); err != nil {
		a.log.Debug("config watch disabled", zap.Error(err))
	}
}
