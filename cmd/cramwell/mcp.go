package main

import (
	"context"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/knowledge"
	"github.com/cramwell/backend-go/internal/mcpserver"
	"github.com/cramwell/backend-go/internal/metrics"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/cramwell/backend-go/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newMCPCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ingestion and study tools over MCP",
		Long:  "Serves MCP over stdio by default, or over streamable HTTP with --http.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return a.invoke(func(
					cfg *config.Config,
					ingest *services.IngestionService,
					study *services.StudyService,
					gateway *knowledge.VectorGateway,
					generator knowledge.Generator,
					stager storage.Stager,
					monitor *services.MemoryMonitor,
					m *metrics.Metrics,
				) error {
					server, err := mcpserver.NewServer(cfg.App.Name, &mcpserver.Ports{
						Ingestion: ingest,
						Study:     study,
						Checks:    readinessChecks(a, gateway, generator, stager),
					}, a.log)
					if err != nil {
						return err
					}

					g, gctx := errgroup.WithContext(ctx)
					g.Go(func() error {
						monitor.Run(gctx)
						return nil
					})
					startBackground(gctx, g, a, m)
					g.Go(func() error {
						if httpAddr != "" {
							return server.RunHTTP(gctx, httpAddr)
						}
						return server.Run(gctx)
					})
					return g.Wait()
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for streamable HTTP, e.g. :8000")
	return cmd
}

func readinessChecks(a *app, gateway *knowledge.VectorGateway, generator knowledge.Generator, stager storage.Stager) map[string]mcpserver.ReadinessCheck {
	checks := map[string]mcpserver.ReadinessCheck{
		"vector_gateway": func(context.Context) bool { return gateway.Ready() },
		"generator":      func(context.Context) bool { return generator.Ready() },
		"storage":        stager.Ready,
	}
	for _, hc := range a.resources.HealthChecks() {
		hc := hc
		checks[hc.Result().Name] = func(ctx context.Context) bool { return hc.Check(ctx) == nil }
	}
	return checks
}
