package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings serves the embeddings endpoint. Each input gets the vector
// [position, len(input)], returned in reverse order.
type fakeEmbeddings struct {
	mu       sync.Mutex
	requests [][]string
	failOn   int
}

func (f *fakeEmbeddings) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req.Input)
	n := len(f.requests)
	f.mu.Unlock()

	if f.failOn == n {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
		return
	}

	data := make([]map[string]interface{}, 0, len(req.Input))
	for i := len(req.Input) - 1; i >= 0; i-- {
		data = append(data, map[string]interface{}{
			"object":    "embedding",
			"index":     i,
			"embedding": []float32{float32(i), float32(len(req.Input[i]))},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"model":  "text-embedding-3-small",
		"data":   data,
	})
}

func newFakeEmbedder(t *testing.T, fake *fakeEmbeddings, batchSize int) *OpenAIEmbedder {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	embedder, ok := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test", BaseURL: server.URL}, "").(*OpenAIEmbedder)
	require.True(t, ok)
	embedder.batchSize = batchSize
	return embedder
}

func TestNewOpenAIEmbedder_NoKeyIsNoop(t *testing.T) {
	embedder := NewOpenAIEmbedder(OpenAIOptions{}, "text-embedding-3-large")
	assert.False(t, embedder.Ready())
	_, err := embedder.Embed(context.Background(), "text")
	assert.Error(t, err)

	large := NewOpenAIEmbedder(OpenAIOptions{APIKey: "k"}, "text-embedding-3-large")
	assert.Equal(t, 3072, large.Dimensions())
}

func TestOpenAIEmbedder_EmbedBatchKeepsInputOrder(t *testing.T) {
	fake := &fakeEmbeddings{}
	embedder := newFakeEmbedder(t, fake, 2)

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.Equal(t, float32(i%2), v[0])
		assert.Equal(t, float32(i+1), v[1])
	}
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, fake.requests)
}

func TestOpenAIEmbedder_EmbedBatchReportsFailedRange(t *testing.T) {
	fake := &fakeEmbeddings{failOn: 2}
	embedder := newFakeEmbedder(t, fake, 2)

	_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	var embedErr *EmbeddingError
	require.True(t, errors.As(err, &embedErr))
	assert.Equal(t, 2, embedErr.First)
	assert.Equal(t, 3, embedErr.Last)
	assert.Contains(t, err.Error(), "embed chunks 2-3")
	assert.Len(t, fake.requests, 2)

	_, err = embedder.EmbedBatch(context.Background(), []string{"a", "  "})
	require.True(t, errors.As(err, &embedErr))
	assert.Equal(t, 1, embedErr.First)
	assert.Len(t, fake.requests, 2)
}

// batchHashEmbedder is a hashEmbedder that also embeds in batches.
type batchHashEmbedder struct {
	hashEmbedder
	batches int
	fail    bool
}

func (b *batchHashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.batches++
	if b.fail {
		return nil, &EmbeddingError{First: 1, Last: 1, Err: errors.New("rate limited")}
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, _ := b.hashEmbedder.Embed(ctx, text)
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func TestGateway_UsesBatchEmbedder(t *testing.T) {
	ctx := context.Background()
	index := &countingIndex{MemoryVectorIndex: NewMemoryVectorIndex(testDimension)}
	embedder := &batchHashEmbedder{}
	observer := &failureCounter{}
	gateway := NewVectorGateway(index, embedder, observer, nil)

	chunks := chunksFor("nb", "Mitosis has four phases.", "Meiosis produces gametes.", "Exams are closed book.")
	require.True(t, gateway.Upsert(ctx, "nb", chunks, DocumentMeta{Filename: "bio.pdf"}))
	assert.Equal(t, 1, embedder.batches)
	assert.Equal(t, 3, index.Len())

	results := gateway.Query(ctx, "nb", "meiosis gametes", 1)
	require.Len(t, results, 1)
	assert.Equal(t, "Meiosis produces gametes.", results[0].Text)

	embedder.fail = true
	assert.False(t, gateway.Upsert(ctx, "nb", chunksFor("nb", "one", "two"), DocumentMeta{}))
	assert.Equal(t, []string{"embed"}, observer.ops)
	assert.Equal(t, 3, index.Len())
}
