package knowledge

import (
	"regexp"
	"strings"
	"time"
)

const (
	defaultChunkMaxTokens     = 6000
	defaultChunkOverlapTokens = 200

	// characters per token assumed when no tokenizer is available
	fallbackCharsPerToken = 3
	// initial characters per token guess when hard-splitting a single word
	hardSplitCharsPerToken = 4
)

// Chunk is one token-bounded slice of a document.
type Chunk struct {
	Text           string
	NotebookID     string
	SourceFilename string
	ChunkIndex     int
	TotalChunks    int
	CreatedAt      time.Time
}

// BuildChunks numbers texts 0..N-1 and stamps them with document metadata.
func BuildChunks(texts []string, notebookID, filename string, createdAt time.Time) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			Text:           text,
			NotebookID:     notebookID,
			SourceFilename: filename,
			ChunkIndex:     i,
			TotalChunks:    len(texts),
			CreatedAt:      createdAt,
		}
	}
	return chunks
}

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Chunker splits text into overlapping chunks of at most maxTokens tokens.
// With a nil tokenizer it falls back to fixed character windows.
type Chunker struct {
	tokenizer     Tokenizer
	maxTokens     int
	overlapTokens int
	sepTokens     int
}

// NewChunker returns a chunker; see Split for the bounds.
func NewChunker(tokenizer Tokenizer, maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = defaultChunkMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}

	c := &Chunker{
		tokenizer:     tokenizer,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}
	if tokenizer != nil {
		c.sepTokens = tokenizer.Count(" ")
	}
	return c
}

// MaxTokens returns the per-chunk bound.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Split returns the ordered chunk texts. Blank input yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.tokenizer == nil {
		return c.splitByCharacters(text)
	}
	if c.tokenizer.Count(text) <= c.maxTokens {
		return []string{text}
	}

	chunks := c.pack(splitSentences(text), c.splitSentence)
	return c.enforceLimit(chunks)
}

// pack greedily accumulates units into chunks. When a chunk closes, the next
// one is seeded with the trailing units whose combined count fits in the
// overlap window. Units larger than maxTokens go through oversize.
func (c *Chunker) pack(units []string, oversize func(string) []string) []string {
	var (
		chunks  []string
		current []string
		counts  []int
		tokens  int
		carried int
	)

	closeChunk := func() {
		if len(current) > carried {
			chunks = append(chunks, strings.Join(current, " "))
		}
	}
	reset := func() {
		current, counts, tokens, carried = nil, nil, 0, 0
	}

	for _, unit := range units {
		n := c.tokenizer.Count(unit)

		if n > c.maxTokens {
			closeChunk()
			reset()
			chunks = append(chunks, oversize(unit)...)
			continue
		}

		if len(current) > 0 && tokens+c.sepTokens+n > c.maxTokens {
			closeChunk()
			current, counts = c.overlapTail(current, counts)
			tokens = c.joinedCount(counts)
			carried = len(current)
			if len(current) > 0 && tokens+c.sepTokens+n > c.maxTokens {
				reset()
			}
		}

		if len(current) > 0 {
			tokens += c.sepTokens
		}
		current = append(current, unit)
		counts = append(counts, n)
		tokens += n
	}
	closeChunk()

	return chunks
}

// overlapTail walks backward from the end of a closed chunk and returns the
// longest suffix within overlapTokens. The whole chunk is never carried.
func (c *Chunker) overlapTail(units []string, counts []int) ([]string, []int) {
	if c.overlapTokens == 0 || len(units) < 2 {
		return nil, nil
	}

	start := len(units)
	total := 0
	for i := len(units) - 1; i >= 1; i-- {
		cost := counts[i]
		if i < len(units)-1 {
			cost += c.sepTokens
		}
		if total+cost > c.overlapTokens {
			break
		}
		total += cost
		start = i
	}
	if start == len(units) {
		return nil, nil
	}

	tailUnits := make([]string, len(units)-start)
	copy(tailUnits, units[start:])
	tailCounts := make([]int, len(counts)-start)
	copy(tailCounts, counts[start:])
	return tailUnits, tailCounts
}

func (c *Chunker) joinedCount(counts []int) int {
	total := 0
	for i, n := range counts {
		total += n
		if i > 0 {
			total += c.sepTokens
		}
	}
	return total
}

func (c *Chunker) splitSentence(sentence string) []string {
	return c.pack(strings.Fields(sentence), c.hardSplit)
}

// hardSplit cuts text with no usable boundary by runes.
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	var pieces []string
	for len(runes) > 0 {
		size := c.maxTokens * hardSplitCharsPerToken
		if size > len(runes) {
			size = len(runes)
		}
		for size > 1 {
			n := c.tokenizer.Count(string(runes[:size]))
			if n <= c.maxTokens {
				break
			}
			next := size * c.maxTokens / n
			if next >= size {
				next = size - 1
			}
			if next < 1 {
				next = 1
			}
			size = next
		}
		pieces = append(pieces, string(runes[:size]))
		runes = runes[size:]
	}
	return pieces
}

// enforceLimit recounts every chunk. Joined text can tokenize differently
// from the sum of its parts, so anything over the bound is split again.
func (c *Chunker) enforceLimit(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if c.tokenizer.Count(chunk) <= c.maxTokens {
			out = append(out, chunk)
			continue
		}
		for _, piece := range c.pack(strings.Fields(chunk), c.hardSplit) {
			if c.tokenizer.Count(piece) <= c.maxTokens {
				out = append(out, piece)
			} else {
				out = append(out, c.hardSplit(piece)...)
			}
		}
	}
	return out
}

func (c *Chunker) splitByCharacters(text string) []string {
	runes := []rune(text)
	size := c.maxTokens * fallbackCharsPerToken
	overlap := c.overlapTokens * fallbackCharsPerToken
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
