// Package mcpserver exposes ingestion, retrieval and study features as MCP
// tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/logger"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Version is reported in the MCP implementation info.
const Version = "1.0.0"

// ErrMissingService is returned when a required service is not provided.
var ErrMissingService = errors.New("mcpserver: ingestion and study services are required")

// Ingester indexes and removes notebook documents.
type Ingester interface {
	Ingest(ctx context.Context, doc services.SourceDocument) (*services.IngestResult, error)
	IngestObject(ctx context.Context, job kafka.IngestJob) (*services.IngestResult, error)
	RemoveNotebook(ctx context.Context, notebookID string) bool
}

// Studier answers questions and manages study features.
type Studier interface {
	Ask(ctx context.Context, notebookID, question string) (string, bool)
	Generate(ctx context.Context, notebookID, feature string) (string, bool, error)
	Clear(ctx context.Context, notebookID, feature string) (bool, error)
}

// ReadinessCheck reports whether one backend is usable.
type ReadinessCheck func(ctx context.Context) bool

// Ports groups what the tools call into.
type Ports struct {
	Ingestion Ingester
	Study     Studier
	// Checks are reported by health_check, keyed by component name.
	Checks map[string]ReadinessCheck
}

// Validate ensures the required services are set.
func (p *Ports) Validate() error {
	if p.Ingestion == nil || p.Study == nil {
		return ErrMissingService
	}
	return nil
}

// Server is the MCP tool server.
type Server struct {
	ports  *Ports
	server *mcp.Server
	log    *zap.Logger
}

// NewServer registers every tool on a new MCP server.
func NewServer(name string, ports *Ports, log *zap.Logger) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if name == "" {
		name = "cramwell"
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: Version}, nil),
		log:    logger.Named(log, "mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info("mcp server listening", zap.String("addr", addr))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
