package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, notebookID string, feature FeatureType) (*Entry, error) {
	args := m.Called(ctx, notebookID, feature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Entry), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, entry Entry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, notebookID string, feature FeatureType) error {
	return m.Called(ctx, notebookID, feature).Error(0)
}

func (m *MockStore) DeleteNotebook(ctx context.Context, notebookID string) error {
	return m.Called(ctx, notebookID).Error(0)
}

type hitCounter struct {
	hits, misses int
}

func (h *hitCounter) ObserveCache(feature string, hit bool) {
	if hit {
		h.hits++
	} else {
		h.misses++
	}
}

func TestParseFeatureType(t *testing.T) {
	ft, ok := ParseFeatureType(" Summary ")
	assert.True(t, ok)
	assert.Equal(t, FeatureSummary, ft)

	_, ok = ParseFeatureType("mindmap")
	assert.False(t, ok)
}

func TestArtifactCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	counter := &hitCounter{}
	c := NewArtifactCache(NewMemoryStore(), counter, nil)

	_, ok := c.Get(ctx, "nb", FeatureSummary)
	assert.False(t, ok)

	require.True(t, c.Put(ctx, "nb", FeatureSummary, "first"))
	require.True(t, c.Put(ctx, "nb", FeatureSummary, "second"))
	require.True(t, c.Put(ctx, "nb", FeatureExam, "exam"))
	require.True(t, c.Put(ctx, "other", FeatureSummary, "theirs"))

	content, ok := c.Get(ctx, "nb", FeatureSummary)
	require.True(t, ok)
	assert.Equal(t, "second", content)
	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 1, counter.misses)

	assert.True(t, c.Invalidate(ctx, "nb", FeatureSummary))
	assert.True(t, c.Invalidate(ctx, "nb", FeatureSummary))
	_, ok = c.Get(ctx, "nb", FeatureSummary)
	assert.False(t, ok)

	assert.True(t, c.InvalidateAll(ctx, "nb"))
	_, ok = c.Get(ctx, "nb", FeatureExam)
	assert.False(t, ok)

	content, ok = c.Get(ctx, "other", FeatureSummary)
	assert.True(t, ok)
	assert.Equal(t, "theirs", content)
}

func TestArtifactCache_RejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	c := NewArtifactCache(store, nil, nil)

	assert.False(t, c.Put(ctx, "nb", FeatureType("mindmap"), "x"))
	assert.False(t, c.Put(ctx, "", FeatureSummary, "x"))
	_, ok := c.Get(ctx, "nb", FeatureType("quiz"))
	assert.False(t, ok)
	assert.False(t, c.Invalidate(ctx, "nb", FeatureType("quiz")))
	assert.False(t, c.InvalidateAll(ctx, " "))

	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "DeleteNotebook", mock.Anything, mock.Anything)
}

func TestArtifactCache_NormalisesKeys(t *testing.T) {
	ctx := context.Background()
	c := NewArtifactCache(NewMemoryStore(), nil, nil)

	require.True(t, c.Put(ctx, " nb ", FeatureType("Summary"), "overview"))
	content, ok := c.Get(ctx, "nb", FeatureSummary)
	require.True(t, ok)
	assert.Equal(t, "overview", content)

	assert.True(t, c.Invalidate(ctx, "nb\t", FeatureType(" SUMMARY ")))
	_, ok = c.Get(ctx, "nb", FeatureSummary)
	assert.False(t, ok)

	require.True(t, c.Put(ctx, "nb", FeatureExam, "exam"))
	assert.True(t, c.InvalidateAll(ctx, "  nb"))
	_, ok = c.Get(ctx, "nb", FeatureExam)
	assert.False(t, ok)

	store := new(MockStore)
	mocked := NewArtifactCache(store, nil, nil)
	store.On("Get", ctx, "nb", FeatureFlashcards).Return(nil, ErrNotFound)
	_, ok = mocked.Get(ctx, " nb", FeatureType("Flashcards"))
	assert.False(t, ok)
	store.AssertExpectations(t)
}

func TestArtifactCache_StoreFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	c := NewArtifactCache(store, nil, nil)
	boom := errors.New("connection reset")

	store.On("Get", ctx, "nb", FeatureExam).Return(nil, boom)
	store.On("Put", ctx, mock.MatchedBy(func(e Entry) bool { return e.NotebookID == "nb" })).Return(boom)
	store.On("Delete", ctx, "nb", FeatureExam).Return(boom)
	store.On("DeleteNotebook", ctx, "nb").Return(boom)

	_, ok := c.Get(ctx, "nb", FeatureExam)
	assert.False(t, ok)
	assert.False(t, c.Put(ctx, "nb", FeatureExam, "x"))
	assert.False(t, c.Invalidate(ctx, "nb", FeatureExam))
	assert.False(t, c.InvalidateAll(ctx, "nb"))
	store.AssertExpectations(t)
}

func TestMemoryStore_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := NewArtifactCache(store, nil, nil)

	require.True(t, c.Put(ctx, "nb", FeatureFlashcards, "v1"))
	first, err := store.Get(ctx, "nb", FeatureFlashcards)
	require.NoError(t, err)

	require.True(t, c.Put(ctx, "nb", FeatureFlashcards, "v2"))
	second, err := store.Get(ctx, "nb", FeatureFlashcards)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
	assert.Equal(t, "v2", second.Content)
}
