package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cramwell/backend-go/internal/cache"
	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAnswerer is a testify mock of Answerer.
type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, notebookID, question string) (string, bool) {
	args := m.Called(ctx, notebookID, question)
	return args.String(0), args.Bool(1)
}

func newMemoryArtifacts() *cache.ArtifactCache {
	return cache.NewArtifactCache(cache.NewMemoryStore(), nil, zap.NewNop())
}

func TestGenerate_MissGeneratesAndCaches(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Answer", mock.Anything, "nb", FeaturePrompt(cache.FeatureExam)).Return("# Sample Exam Questions\n1. ...", true).Once()

	artifacts := newMemoryArtifacts()
	svc := NewStudyService(engine, artifacts, StudyOptions{Logger: zap.NewNop()})

	content, cached, err := svc.Generate(context.Background(), "nb", "exam")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "# Sample Exam Questions\n1. ...", content)

	content, cached, err = svc.Generate(context.Background(), "nb", "EXAM")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "# Sample Exam Questions\n1. ...", content)

	engine.AssertExpectations(t)
}

func TestGenerate_SummaryIsWrapped(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Answer", mock.Anything, "nb", FeaturePrompt(cache.FeatureSummary)).Return("  Covers sorting and graphs. ", true)

	svc := NewStudyService(engine, newMemoryArtifacts(), StudyOptions{Logger: zap.NewNop()})
	content, _, err := svc.Generate(context.Background(), "nb", "summary")
	require.NoError(t, err)
	assert.Equal(t, "# Course Summary\n\n## Syllabus Overview\nCovers sorting and graphs.\n", content)
}

func TestGenerate_NoAnswerIsNotCached(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Answer", mock.Anything, "nb", mock.Anything).Return("", false)

	artifacts := newMemoryArtifacts()
	svc := NewStudyService(engine, artifacts, StudyOptions{Logger: zap.NewNop()})

	_, _, err := svc.Generate(context.Background(), "nb", "flashcards")
	assert.ErrorIs(t, err, apperrors.ErrNoContext)

	_, hit := artifacts.Get(context.Background(), "nb", cache.FeatureFlashcards)
	assert.False(t, hit)
}

func TestGenerate_RejectsInvalidInput(t *testing.T) {
	engine := new(MockAnswerer)
	svc := NewStudyService(engine, newMemoryArtifacts(), StudyOptions{Logger: zap.NewNop()})

	_, _, err := svc.Generate(context.Background(), "nb", "mindmap")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, _, err = svc.Generate(context.Background(), "", "summary")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	engine.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}

type blockingAnswerer struct {
	calls   int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAnswerer) Answer(ctx context.Context, notebookID, question string) (string, bool) {
	if atomic.AddInt32(&b.calls, 1) == 1 {
		close(b.entered)
	}
	<-b.release
	return "cards", true
}

func TestGenerate_DedupeCollapsesConcurrentCalls(t *testing.T) {
	engine := &blockingAnswerer{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewStudyService(engine, newMemoryArtifacts(), StudyOptions{DedupeGeneration: true, Logger: zap.NewNop()})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content, _, err := svc.Generate(context.Background(), "nb", "flashcards")
			assert.NoError(t, err)
			results[i] = content
		}(i)
	}

	<-engine.entered
	time.Sleep(50 * time.Millisecond)
	close(engine.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&engine.calls))
	for _, r := range results {
		assert.Equal(t, "cards", r)
	}
}

func TestAsk(t *testing.T) {
	engine := new(MockAnswerer)
	engine.On("Answer", mock.Anything, "nb", "What is a heap?").Return("**Answer:** a tree", true)

	svc := NewStudyService(engine, newMemoryArtifacts(), StudyOptions{Logger: zap.NewNop()})
	answer, ok := svc.Ask(context.Background(), "nb", "  What is a heap? ")
	assert.True(t, ok)
	assert.Equal(t, "**Answer:** a tree", answer)

	_, ok = svc.Ask(context.Background(), "nb", " ")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	artifacts := newMemoryArtifacts()
	ctx := context.Background()
	require.True(t, artifacts.Put(ctx, "nb", cache.FeatureSummary, "s"))
	require.True(t, artifacts.Put(ctx, "nb", cache.FeatureExam, "e"))

	svc := NewStudyService(new(MockAnswerer), artifacts, StudyOptions{Logger: zap.NewNop()})

	ok, err := svc.Clear(ctx, "nb", "summary")
	require.NoError(t, err)
	assert.True(t, ok)
	_, hit := artifacts.Get(ctx, "nb", cache.FeatureSummary)
	assert.False(t, hit)
	_, hit = artifacts.Get(ctx, "nb", cache.FeatureExam)
	assert.True(t, hit)

	ok, err = svc.Clear(ctx, "nb", "")
	require.NoError(t, err)
	assert.True(t, ok)
	_, hit = artifacts.Get(ctx, "nb", cache.FeatureExam)
	assert.False(t, hit)

	_, err = svc.Clear(ctx, "nb", "quiz")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
