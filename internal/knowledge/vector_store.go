package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// RecordMetadata is stored alongside every vector.
type RecordMetadata struct {
	NotebookID  string
	Text        string
	Filename    string
	ProcessedAt string
}

// VectorRecord is one embedded chunk in the shared index.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// VectorMatch is a ranked query hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata RecordMetadata
}

// TenantFilter scopes a backend read or delete to one notebook. The zero
// value is invalid; obtain one through NewTenantFilter.
type TenantFilter struct {
	notebookID string
}

// NewTenantFilter scopes a query to one notebook.
func NewTenantFilter(notebookID string) (TenantFilter, error) {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return TenantFilter{}, fmt.Errorf("notebook id is required")
	}
	return TenantFilter{notebookID: notebookID}, nil
}

// NotebookID returns the tenant the filter matches.
func (f TenantFilter) NotebookID() string {
	return f.notebookID
}

// Valid reports whether the filter was built by NewTenantFilter.
func (f TenantFilter) Valid() bool {
	return f.notebookID != ""
}

// VectorIndex is the shared vector index backend. Reads and deletes accept
// only a TenantFilter, so there is no way to address records across tenants.
type VectorIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, filter TenantFilter, vector []float32, topK int) ([]VectorMatch, error)
	Delete(ctx context.Context, filter TenantFilter) error
	Ready() bool
}

var errInvalidFilter = fmt.Errorf("tenant filter is empty")
