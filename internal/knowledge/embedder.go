package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns one text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// BatchEmbedder embeds several texts per request. Vectors come back in
// input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingError reports which chunks a failed embedding request covered.
type EmbeddingError struct {
	First int
	Last  int
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.First == e.Last {
		return fmt.Sprintf("embed chunk %d: %v", e.First, e.Err)
	}
	return fmt.Sprintf("embed chunks %d-%d: %v", e.First, e.Last, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// NoopEmbedder stands in when no API key is configured.
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIOptions configures the go-openai client shared by embedder and
// generator.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
}

func newOpenAIClient(opts OpenAIOptions) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// defaultEmbedBatch keeps a request of full-size chunks well under the
// per-request token limit of the embeddings endpoint.
const defaultEmbedBatch = 32

// OpenAIEmbedder calls the OpenAI embeddings endpoint. Chunk batches are
// sent one request at a time.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewOpenAIEmbedder returns a NoopEmbedder when the API key is empty.
func NewOpenAIEmbedder(opts OpenAIOptions, model string) Embedder {
	if strings.TrimSpace(opts.APIKey) == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     newOpenAIClient(opts),
		model:      model,
		dimensions: dims,
		batchSize:  defaultEmbedBatch,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	vectors, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, batchSize inputs per request. The
// returned error is an *EmbeddingError naming the failed range.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &EmbeddingError{First: i, Last: i, Err: errors.New("text is empty")}
		}
	}

	size := e.batchSize
	if size <= 0 {
		size = defaultEmbedBatch
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.request(ctx, texts[start:end])
		if err != nil {
			return nil, &EmbeddingError{First: start, Last: end - 1, Err: err}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: inputs,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embedding %d is empty", d.Index)
		}
		vectors[i] = append([]float32(nil), d.Embedding...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
