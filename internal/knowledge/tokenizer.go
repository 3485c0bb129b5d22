package knowledge

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer counts tokens the way the embedding model will.
type Tokenizer interface {
	Count(text string) int
}

// embeddingEncodings maps embedding models to their BPE encoding.
var embeddingEncodings = map[string]string{
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
}

var loaderOnce sync.Once

// TiktokenTokenizer counts tokens with the model's BPE encoding.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the encoding for model from the embedded BPE
// ranks, so no network access is needed.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	name, ok := embeddingEncodings[model]
	if !ok {
		name = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	return &TiktokenTokenizer{encoding: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
