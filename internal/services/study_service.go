package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cramwell/backend-go/internal/cache"
	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/cramwell/backend-go/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Answerer answers a question from a notebook's documents.
type Answerer interface {
	Answer(ctx context.Context, notebookID, question string) (string, bool)
}

// ArtifactCache stores generated study features.
type ArtifactCache interface {
	Get(ctx context.Context, notebookID string, feature cache.FeatureType) (string, bool)
	Put(ctx context.Context, notebookID string, feature cache.FeatureType, content string) bool
	Invalidate(ctx context.Context, notebookID string, feature cache.FeatureType) bool
	InvalidateAll(ctx context.Context, notebookID string) bool
}

// StudyOptions configures a StudyService.
type StudyOptions struct {
	// DedupeGeneration collapses concurrent generations of the same
	// (notebook, feature) into one query.
	DedupeGeneration bool
	Logger           *zap.Logger
}

// StudyService answers questions and produces cached study features.
type StudyService struct {
	engine Answerer
	cache  ArtifactCache
	dedupe bool
	group  singleflight.Group
	log    *zap.Logger
}

// NewStudyService wires question answering and study artifacts.
func NewStudyService(engine Answerer, artifacts ArtifactCache, opts StudyOptions) *StudyService {
	return &StudyService{
		engine: engine,
		cache:  artifacts,
		dedupe: opts.DedupeGeneration,
		log:    logger.Named(opts.Logger, "study"),
	}
}

// Ask answers question from notebookID's documents.
func (s *StudyService) Ask(ctx context.Context, notebookID, question string) (string, bool) {
	notebookID = strings.TrimSpace(notebookID)
	question = strings.TrimSpace(question)
	if notebookID == "" || question == "" {
		return "", false
	}
	return s.engine.Answer(ctx, notebookID, question)
}

// Generate returns the feature content for notebookID and whether it came
// from the cache. A fresh result is stored before it is returned.
func (s *StudyService) Generate(ctx context.Context, notebookID, feature string) (string, bool, error) {
	notebookID = strings.TrimSpace(notebookID)
	ft, ok := cache.ParseFeatureType(feature)
	if notebookID == "" || !ok {
		return "", false, fmt.Errorf("notebook %q feature %q: %w", notebookID, feature, apperrors.ErrInvalidInput)
	}

	if content, hit := s.cache.Get(ctx, notebookID, ft); hit {
		return content, true, nil
	}

	if !s.dedupe {
		content, err := s.generate(ctx, notebookID, ft)
		return content, false, err
	}

	v, err, shared := s.group.Do(notebookID+"\x00"+string(ft), func() (interface{}, error) {
		return s.generate(ctx, notebookID, ft)
	})
	if shared {
		s.log.Debug("generation shared", zap.String("notebook_id", notebookID), zap.String("feature", string(ft)))
	}
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

func (s *StudyService) generate(ctx context.Context, notebookID string, ft cache.FeatureType) (string, error) {
	answer, ok := s.engine.Answer(ctx, notebookID, FeaturePrompt(ft))
	if !ok {
		return "", fmt.Errorf("%s for %s: %w", ft, notebookID, apperrors.ErrNoContext)
	}

	content := renderFeature(ft, answer)
	if !s.cache.Put(ctx, notebookID, ft, content) {
		s.log.Warn("generated feature not cached",
			zap.String("notebook_id", notebookID),
			zap.String("feature", string(ft)))
	}
	return content, nil
}

// Clear drops one cached feature, or all of them when feature is empty.
func (s *StudyService) Clear(ctx context.Context, notebookID, feature string) (bool, error) {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return false, fmt.Errorf("notebook id is required: %w", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(feature) == "" {
		return s.cache.InvalidateAll(ctx, notebookID), nil
	}
	ft, ok := cache.ParseFeatureType(feature)
	if !ok {
		return false, fmt.Errorf("feature %q: %w", feature, apperrors.ErrInvalidInput)
	}
	return s.cache.Invalidate(ctx, notebookID, ft), nil
}
