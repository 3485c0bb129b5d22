package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryVectorIndex keeps vectors in process memory and ranks by cosine
// similarity. Used for local runs and tests.
type MemoryVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]VectorRecord
	created   bool
}

// NewMemoryVectorIndex returns an empty in-process index.
func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		dimension: dimension,
		records:   make(map[string]VectorRecord),
	}
}

func (m *MemoryVectorIndex) EnsureIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	return nil
}

func (m *MemoryVectorIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if m.dimension > 0 && len(rec.Vector) != m.dimension {
			return fmt.Errorf("record %s has dimension %d, index expects %d", rec.ID, len(rec.Vector), m.dimension)
		}
		if rec.Metadata.NotebookID == "" {
			return fmt.Errorf("record %s has no notebook id", rec.ID)
		}
	}
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *MemoryVectorIndex) Query(ctx context.Context, filter TenantFilter, vector []float32, topK int) ([]VectorMatch, error) {
	if !filter.Valid() {
		return nil, errInvalidFilter
	}
	queryNorm := vectorNorm(vector)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query embedding norm is zero")
	}

	m.mu.RLock()
	matches := make([]VectorMatch, 0)
	for _, rec := range m.records {
		if rec.Metadata.NotebookID != filter.NotebookID() {
			continue
		}
		matches = append(matches, VectorMatch{
			ID:       rec.ID,
			Score:    cosineSimilarity(vector, rec.Vector, queryNorm),
			Metadata: rec.Metadata,
		})
	}
	m.mu.RUnlock()

	sortMatchesByScore(matches)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryVectorIndex) Delete(ctx context.Context, filter TenantFilter) error {
	if !filter.Valid() {
		return errInvalidFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.records {
		if rec.Metadata.NotebookID == filter.NotebookID() {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryVectorIndex) Ready() bool {
	return true
}

// Len returns the number of stored records.
func (m *MemoryVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(a) != len(b) || normA == 0 {
		return 0
	}

	var dot, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normB == 0 {
		return 0
	}
	return dot / (normA * math.Sqrt(normB))
}

// sortMatchesByScore orders by descending score, then id for stable output.
func sortMatchesByScore(matches []VectorMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
