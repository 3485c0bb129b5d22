package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cramwell/backend-go/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentMeta describes the source document of a batch of chunks.
type DocumentMeta struct {
	Filename    string
	ProcessedAt time.Time
}

// RetrievedChunk is one ranked match returned to the query engine.
type RetrievedChunk struct {
	Text  string
	Score float64
}

// GatewayObserver records backend failures by operation.
type GatewayObserver interface {
	ObserveBackendFailure(operation string)
}

// VectorGateway embeds chunks and questions and talks to the shared index
// on behalf of a single notebook at a time.
type VectorGateway struct {
	index    VectorIndex
	embedder Embedder
	metrics  GatewayObserver
	log      *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewVectorGateway wraps an index and embedder.
func NewVectorGateway(index VectorIndex, embedder Embedder, metrics GatewayObserver, log *zap.Logger) *VectorGateway {
	return &VectorGateway{
		index:    index,
		embedder: embedder,
		metrics:  metrics,
		log:      logger.Named(log, "vector_gateway"),
	}
}

// EnsureIndex creates the shared index on first use. Later calls return
// immediately once a call has succeeded.
func (g *VectorGateway) EnsureIndex(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return nil
	}
	if err := g.index.EnsureIndex(ctx); err != nil {
		g.failure("ensure_index", err)
		return err
	}
	g.ready = true
	return nil
}

// Upsert embeds chunks in order and writes them as a single batch. It
// returns false on any failure; nothing is written in that case.
func (g *VectorGateway) Upsert(ctx context.Context, notebookID string, chunks []Chunk, meta DocumentMeta) bool {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		g.log.Warn("upsert rejected: empty notebook id")
		return false
	}
	if len(chunks) == 0 {
		return true
	}
	if err := g.EnsureIndex(ctx); err != nil {
		return false
	}

	processedAt := meta.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}
	stamp := processedAt.UTC().Format(time.RFC3339)

	vectors, err := g.embedChunks(ctx, chunks)
	if err != nil {
		fields := []zap.Field{zap.String("notebook_id", notebookID), zap.String("filename", meta.Filename)}
		var embedErr *EmbeddingError
		if errors.As(err, &embedErr) && embedErr.First >= 0 && embedErr.Last < len(chunks) {
			fields = append(fields, zap.Int("first_chunk", chunks[embedErr.First].ChunkIndex), zap.Int("last_chunk", chunks[embedErr.Last].ChunkIndex))
		}
		g.failure("embed", err, fields...)
		return false
	}

	records := make([]VectorRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, VectorRecord{
			ID:     NewVectorID(notebookID, chunk.ChunkIndex),
			Vector: vectors[i],
			Metadata: RecordMetadata{
				NotebookID:  notebookID,
				Text:        chunk.Text,
				Filename:    meta.Filename,
				ProcessedAt: stamp,
			},
		})
	}

	if err := g.index.Upsert(ctx, records); err != nil {
		g.failure("upsert", err, zap.String("notebook_id", notebookID), zap.Int("records", len(records)))
		return false
	}

	g.log.Info("chunks indexed",
		zap.String("notebook_id", notebookID),
		zap.String("filename", meta.Filename),
		zap.Int("records", len(records)))
	return true
}

// embedChunks uses batched requests when the embedder supports them and
// falls back to one request per chunk.
func (g *VectorGateway) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	if batcher, ok := g.embedder.(BatchEmbedder); ok {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		vectors, err := batcher.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}
		return vectors, nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := g.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, &EmbeddingError{First: i, Last: i, Err: err}
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

// Query returns up to topK chunks of notebookID ranked by the backend, or
// nil when nothing matched or a backend call failed.
func (g *VectorGateway) Query(ctx context.Context, notebookID, question string, topK int) []RetrievedChunk {
	filter, err := NewTenantFilter(notebookID)
	if err != nil {
		g.log.Warn("query rejected: empty notebook id")
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	if err := g.EnsureIndex(ctx); err != nil {
		return nil
	}

	vector, err := g.embedder.Embed(ctx, question)
	if err != nil {
		g.failure("embed", err, zap.String("notebook_id", filter.NotebookID()))
		return nil
	}

	matches, err := g.index.Query(ctx, filter, vector, topK)
	if err != nil {
		g.failure("query", err, zap.String("notebook_id", filter.NotebookID()))
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	out := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		out = append(out, RetrievedChunk{Text: m.Metadata.Text, Score: m.Score})
	}
	return out
}

// DeleteNotebook removes every vector of notebookID.
func (g *VectorGateway) DeleteNotebook(ctx context.Context, notebookID string) bool {
	filter, err := NewTenantFilter(notebookID)
	if err != nil {
		g.log.Warn("delete rejected: empty notebook id")
		return false
	}
	if err := g.EnsureIndex(ctx); err != nil {
		return false
	}
	if err := g.index.Delete(ctx, filter); err != nil {
		g.failure("delete", err, zap.String("notebook_id", filter.NotebookID()))
		return false
	}
	g.log.Info("notebook vectors deleted", zap.String("notebook_id", filter.NotebookID()))
	return true
}

// Ready reports whether both the index and the embedder are usable.
func (g *VectorGateway) Ready() bool {
	return g.index.Ready() && g.embedder.Ready()
}

func (g *VectorGateway) failure(operation string, err error, fields ...zap.Field) {
	if g.metrics != nil {
		g.metrics.ObserveBackendFailure(operation)
	}
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	g.log.Error("vector backend call failed", fields...)
}

// NewVectorID builds {notebook}_{chunkIndex}_{random8}.
func NewVectorID(notebookID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d_%s", notebookID, chunkIndex, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
