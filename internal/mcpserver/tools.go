package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	msgNotProcessed = "Sorry, your file could not be processed."
	msgNoAnswer     = "Sorry, I was unable to find an answer to your question."
	msgHealthy      = "MCP server is healthy"
	msgDegraded     = "MCP server is running with unavailable backends"
)

// ProcessFileInput is the input of process_file_for_notebook.
type ProcessFileInput struct {
	NotebookID string `json:"notebook_id" jsonschema:"the notebook the document belongs to"`
	Filename   string `json:"filename" jsonschema:"display name, or a local path when object_key is empty"`
	ObjectKey  string `json:"object_key,omitempty" jsonschema:"key of the uploaded object in blob storage"`
}

// ProcessFileOutput reports the ingestion outcome.
type ProcessFileOutput struct {
	Processed bool   `json:"processed"`
	Chunks    int    `json:"chunks"`
	Strategy  string `json:"strategy,omitempty"`
	Message   string `json:"message"`
}

// QueryInput is the input of query_index_for_notebook.
type QueryInput struct {
	NotebookID string `json:"notebook_id" jsonschema:"the notebook to search"`
	Question   string `json:"question" jsonschema:"the question to answer from the notebook's documents"`
}

// QueryOutput carries the formatted answer.
type QueryOutput struct {
	Answered bool   `json:"answered"`
	Answer   string `json:"answer"`
}

// NotebookInput names a notebook.
type NotebookInput struct {
	NotebookID string `json:"notebook_id" jsonschema:"the notebook id"`
}

// MessageOutput is a status line.
type MessageOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FeatureInput selects a study feature of a notebook.
type FeatureInput struct {
	NotebookID string `json:"notebook_id" jsonschema:"the notebook id"`
	Feature    string `json:"feature,omitempty" jsonschema:"summary, exam or flashcards"`
}

// FeatureOutput carries generated or cached content.
type FeatureOutput struct {
	Feature string `json:"feature"`
	Content string `json:"content"`
	Cached  bool   `json:"cached"`
}

// HealthInput takes no arguments.
type HealthInput struct{}

// HealthOutput reports backend readiness.
type HealthOutput struct {
	Status     string          `json:"status"`
	Healthy    bool            `json:"healthy"`
	Components map[string]bool `json:"components,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "process_file_for_notebook",
		Description: "Extract, chunk and index a document into a notebook's context.",
	}, s.handleProcessFile)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_index_for_notebook",
		Description: "Answer a question using only the documents of one notebook.",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_notebook_documents",
		Description: "Delete every indexed document and cached study feature of a notebook.",
	}, s.handleDeleteNotebook)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_study_feature",
		Description: "Return the summary, sample exam or flashcards of a notebook, generating them on a cache miss.",
	}, s.handleGenerateFeature)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "clear_study_feature",
		Description: "Drop a cached study feature, or all of them when feature is empty.",
	}, s.handleClearFeature)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "health_check",
		Description: "Report whether the server and its backends are available.",
	}, s.handleHealth)
}

func (s *Server) handleProcessFile(ctx context.Context, _ *mcp.CallToolRequest, input ProcessFileInput) (*mcp.CallToolResult, ProcessFileOutput, error) {
	var (
		result *services.IngestResult
		err    error
	)
	if input.ObjectKey != "" {
		result, err = s.ports.Ingestion.IngestObject(ctx, kafka.IngestJob{
			NotebookID: input.NotebookID,
			ObjectKey:  input.ObjectKey,
			Filename:   input.Filename,
		})
	} else {
		result, err = s.ports.Ingestion.Ingest(ctx, services.SourceDocument{
			NotebookID: input.NotebookID,
			Filename:   input.Filename,
			Path:       input.Filename,
		})
	}
	if err != nil {
		s.log.Warn("process_file_for_notebook failed",
			zap.String("notebook_id", input.NotebookID),
			zap.String("filename", input.Filename),
			zap.Error(err))
		return nil, ProcessFileOutput{Message: rejectionMessage(err)}, nil
	}

	return nil, ProcessFileOutput{
		Processed: true,
		Chunks:    result.Chunks,
		Strategy:  result.Strategy,
		Message:   fmt.Sprintf("Processed %s into %d chunks for notebook %s", result.Filename, result.Chunks, result.NotebookID),
	}, nil
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedType):
		return msgNotProcessed + " The file type is not supported."
	case errors.Is(err, apperrors.ErrFileTooLarge):
		return msgNotProcessed + " The file is too large."
	default:
		return msgNotProcessed
	}
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	answer, ok := s.ports.Study.Ask(ctx, input.NotebookID, input.Question)
	if !ok {
		return nil, QueryOutput{Answer: msgNoAnswer}, nil
	}
	return nil, QueryOutput{Answered: true, Answer: answer}, nil
}

func (s *Server) handleDeleteNotebook(ctx context.Context, _ *mcp.CallToolRequest, input NotebookInput) (*mcp.CallToolResult, MessageOutput, error) {
	if s.ports.Ingestion.RemoveNotebook(ctx, input.NotebookID) {
		return nil, MessageOutput{
			Success: true,
			Message: fmt.Sprintf("Successfully deleted all documents for notebook %s", input.NotebookID),
		}, nil
	}
	return nil, MessageOutput{
		Message: fmt.Sprintf("Failed to delete documents for notebook %s", input.NotebookID),
	}, nil
}

func (s *Server) handleGenerateFeature(ctx context.Context, _ *mcp.CallToolRequest, input FeatureInput) (*mcp.CallToolResult, FeatureOutput, error) {
	content, cached, err := s.ports.Study.Generate(ctx, input.NotebookID, input.Feature)
	if err != nil {
		return nil, FeatureOutput{}, fmt.Errorf("generate %s: %w", input.Feature, err)
	}
	return nil, FeatureOutput{Feature: strings.ToLower(strings.TrimSpace(input.Feature)), Content: content, Cached: cached}, nil
}

func (s *Server) handleClearFeature(ctx context.Context, _ *mcp.CallToolRequest, input FeatureInput) (*mcp.CallToolResult, MessageOutput, error) {
	ok, err := s.ports.Study.Clear(ctx, input.NotebookID, input.Feature)
	if err != nil {
		return nil, MessageOutput{}, err
	}
	what := "all study features"
	if input.Feature != "" {
		what = input.Feature
	}
	if !ok {
		return nil, MessageOutput{Message: fmt.Sprintf("Failed to clear %s for notebook %s", what, input.NotebookID)}, nil
	}
	return nil, MessageOutput{Success: true, Message: fmt.Sprintf("Cleared %s for notebook %s", what, input.NotebookID)}, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *mcp.CallToolRequest, _ HealthInput) (*mcp.CallToolResult, HealthOutput, error) {
	out := HealthOutput{Status: msgHealthy, Healthy: true}
	if len(s.ports.Checks) == 0 {
		return nil, out, nil
	}

	names := make([]string, 0, len(s.ports.Checks))
	for name := range s.ports.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out.Components = make(map[string]bool, len(names))
	for _, name := range names {
		ok := s.ports.Checks[name](ctx)
		out.Components[name] = ok
		if !ok {
			out.Healthy = false
		}
	}
	if !out.Healthy {
		out.Status = msgDegraded
	}
	return nil, out, nil
}
