package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokenTokenizer(t *testing.T) {
	tok, err := NewTiktokenTokenizer("text-embedding-3-small")
	require.NoError(t, err)

	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 2, tok.Count("hello world"))

	chunker := NewChunker(tok, 50, 10)
	for _, chunk := range chunker.Split(buildDocument(40)) {
		assert.LessOrEqual(t, tok.Count(chunk), 50)
	}
}
