package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultTopK        = 5
	defaultTemperature = 0.1
	defaultMaxTokens   = 2000
)

// Retriever returns ranked chunks of one notebook.
type Retriever interface {
	Query(ctx context.Context, notebookID, question string, topK int) []RetrievedChunk
}

// QueryObserver records answer latency and outcome.
type QueryObserver interface {
	ObserveQuery(outcome string, elapsed time.Duration)
}

// QueryEngineOptions configures NewQueryEngine. Zero values take defaults.
type QueryEngineOptions struct {
	TopK        int
	Temperature float32
	MaxTokens   int
	Router      *IntentRouter
	Formatter   *ResponseFormatter
	Metrics     QueryObserver
	Logger      *zap.Logger
}

// QueryEngine answers a question from the chunks of one notebook.
type QueryEngine struct {
	retriever   Retriever
	generator   Generator
	topK        int
	temperature float32
	maxTokens   int
	router      *IntentRouter
	formatter   *ResponseFormatter
	metrics     QueryObserver
	log         *zap.Logger
}

// NewQueryEngine wires retrieval and generation.
func NewQueryEngine(retriever Retriever, generator Generator, opts QueryEngineOptions) *QueryEngine {
	e := &QueryEngine{
		retriever:   retriever,
		generator:   generator,
		topK:        opts.TopK,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		router:      opts.Router,
		formatter:   opts.Formatter,
		metrics:     opts.Metrics,
		log:         logger.Named(opts.Logger, "query_engine"),
	}
	if e.topK <= 0 {
		e.topK = defaultTopK
	}
	if e.temperature <= 0 {
		e.temperature = defaultTemperature
	}
	if e.maxTokens <= 0 {
		e.maxTokens = defaultMaxTokens
	}
	if e.router == nil {
		e.router = DefaultIntentRouter()
	}
	if e.formatter == nil {
		e.formatter = &ResponseFormatter{}
	}
	return e
}

// Answer retrieves context for question and generates a formatted answer.
// The second return is false when nothing was retrieved or generation failed.
func (e *QueryEngine) Answer(ctx context.Context, notebookID, question string) (string, bool) {
	start := time.Now()

	chunks := e.retriever.Query(ctx, notebookID, question, e.topK)
	if len(chunks) == 0 {
		e.observe("no_context", start)
		e.log.Info("no context for question", zap.String("notebook_id", notebookID))
		return "", false
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	route := e.router.Classify(question)
	raw, err := e.generator.Complete(ctx, CompletionRequest{
		SystemPrompt: route.SystemPrompt,
		UserPrompt:   BuildUserPrompt(strings.Join(texts, "\n\n"), question),
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		e.observe("generation_failed", start)
		e.log.Error("answer generation failed",
			zap.String("notebook_id", notebookID),
			zap.String("intent", string(route.Intent)),
			zap.Error(err))
		return "", false
	}

	e.observe("ok", start)
	e.log.Debug("question answered",
		zap.String("notebook_id", notebookID),
		zap.String("intent", string(route.Intent)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))
	return e.formatter.Format(raw, question), true
}

func (e *QueryEngine) observe(outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveQuery(outcome, time.Since(start))
	}
}

// BuildUserPrompt lays out retrieved context ahead of the question.
func BuildUserPrompt(context, question string) string {
	return "Context from uploaded documents:\n" + context + "\n\nQuestion: " + question + "\n\nAnswer:"
}
