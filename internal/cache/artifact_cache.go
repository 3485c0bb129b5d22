package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
)

// FeatureType is a kind of generated study artifact.
type FeatureType string

const (
	FeatureSummary    FeatureType = "summary"
	FeatureExam       FeatureType = "exam"
	FeatureFlashcards FeatureType = "flashcards"
)

// FeatureTypes lists every cacheable feature.
var FeatureTypes = []FeatureType{FeatureSummary, FeatureExam, FeatureFlashcards}

// ParseFeatureType validates a feature name.
func ParseFeatureType(s string) (FeatureType, bool) {
	ft := FeatureType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FeatureTypes {
		if ft == known {
			return ft, true
		}
	}
	return "", false
}

// Entry is one cached artifact.
type Entry struct {
	NotebookID  string
	FeatureType FeatureType
	Content     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrNotFound is returned by a Store when no entry exists.
var ErrNotFound = errors.New("cache entry not found")

// Store persists entries keyed by (notebook, feature).
type Store interface {
	Get(ctx context.Context, notebookID string, feature FeatureType) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, notebookID string, feature FeatureType) error
	DeleteNotebook(ctx context.Context, notebookID string) error
}

// Observer records cache hits and misses.
type Observer interface {
	ObserveCache(feature string, hit bool)
}

// ArtifactCache fronts a Store. Store failures are logged and reported as a
// miss or false, never as an error.
type ArtifactCache struct {
	store   Store
	metrics Observer
	log     *zap.Logger
}

// NewArtifactCache wraps a store with key normalisation and metrics.
func NewArtifactCache(store Store, metrics Observer, log *zap.Logger) *ArtifactCache {
	return &ArtifactCache{
		store:   store,
		metrics: metrics,
		log:     logger.Named(log, "artifact_cache"),
	}
}

// Get returns the cached content for (notebookID, feature).
func (c *ArtifactCache) Get(ctx context.Context, notebookID string, feature FeatureType) (string, bool) {
	notebookID, feature, ok := c.key(notebookID, feature)
	if !ok {
		return "", false
	}

	entry, err := c.store.Get(ctx, notebookID, feature)
	hit := err == nil && entry != nil
	if c.metrics != nil {
		c.metrics.ObserveCache(string(feature), hit)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Warn("cache read failed",
			zap.String("notebook_id", notebookID),
			zap.String("feature", string(feature)),
			zap.Error(err))
	}
	if !hit {
		return "", false
	}
	return entry.Content, true
}

// Put stores content, replacing any previous entry for the same key.
func (c *ArtifactCache) Put(ctx context.Context, notebookID string, feature FeatureType, content string) bool {
	notebookID, feature, ok := c.key(notebookID, feature)
	if !ok {
		return false
	}

	now := time.Now().UTC()
	err := c.store.Put(ctx, Entry{
		NotebookID:  notebookID,
		FeatureType: feature,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		c.log.Error("cache write failed",
			zap.String("notebook_id", notebookID),
			zap.String("feature", string(feature)),
			zap.Error(err))
		return false
	}
	return true
}

// Invalidate removes one entry. Removing a missing entry succeeds.
func (c *ArtifactCache) Invalidate(ctx context.Context, notebookID string, feature FeatureType) bool {
	notebookID, feature, ok := c.key(notebookID, feature)
	if !ok {
		return false
	}
	if err := c.store.Delete(ctx, notebookID, feature); err != nil {
		c.log.Error("cache invalidate failed",
			zap.String("notebook_id", notebookID),
			zap.String("feature", string(feature)),
			zap.Error(err))
		return false
	}
	return true
}

// InvalidateAll removes every entry of notebookID.
func (c *ArtifactCache) InvalidateAll(ctx context.Context, notebookID string) bool {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return false
	}
	if err := c.store.DeleteNotebook(ctx, notebookID); err != nil {
		c.log.Error("cache invalidate all failed", zap.String("notebook_id", notebookID), zap.Error(err))
		return false
	}
	return true
}

// key normalises a (notebook, feature) pair as the store sees it.
func (c *ArtifactCache) key(notebookID string, feature FeatureType) (string, FeatureType, bool) {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return "", "", false
	}
	ft, ok := ParseFeatureType(string(feature))
	if !ok {
		c.log.Warn("unknown feature type", zap.String("feature", string(feature)))
		return "", "", false
	}
	return notebookID, ft, true
}
