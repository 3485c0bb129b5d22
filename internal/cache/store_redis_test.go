package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis store test: TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	notebookID := "test-" + uuid.NewString()
	store := NewRedisStore(client, time.Minute)
	defer store.DeleteNotebook(ctx, notebookID)

	_, err := store.Get(ctx, notebookID, FeatureSummary)
	assert.ErrorIs(t, err, ErrNotFound)

	created := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Put(ctx, Entry{NotebookID: notebookID, FeatureType: FeatureSummary, Content: "v1", CreatedAt: created, UpdatedAt: created}))
	later := created.Add(time.Minute)
	require.NoError(t, store.Put(ctx, Entry{NotebookID: notebookID, FeatureType: FeatureSummary, Content: "v2", CreatedAt: later, UpdatedAt: later}))
	require.NoError(t, store.Put(ctx, Entry{NotebookID: notebookID, FeatureType: FeatureExam, Content: "exam", CreatedAt: later, UpdatedAt: later}))

	entry, err := store.Get(ctx, notebookID, FeatureSummary)
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Content)
	assert.True(t, created.Equal(entry.CreatedAt))
	assert.True(t, later.Equal(entry.UpdatedAt))

	require.NoError(t, store.Delete(ctx, notebookID, FeatureSummary))
	_, err = store.Get(ctx, notebookID, FeatureSummary)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteNotebook(ctx, notebookID))
	_, err = store.Get(ctx, notebookID, FeatureExam)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TTLIsPerFeature(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis store test: TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	notebookID := "test-" + uuid.NewString()
	store := NewRedisStore(client, time.Hour)
	defer store.DeleteNotebook(ctx, notebookID)

	now := time.Now().UTC()
	require.NoError(t, store.Put(ctx, Entry{NotebookID: notebookID, FeatureType: FeatureSummary, Content: "s", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, client.Expire(ctx, featureKey(notebookID, FeatureSummary), 30*time.Second).Err())

	require.NoError(t, store.Put(ctx, Entry{NotebookID: notebookID, FeatureType: FeatureFlashcards, Content: "f", CreatedAt: now, UpdatedAt: now}))

	summaryTTL, err := client.TTL(ctx, featureKey(notebookID, FeatureSummary)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, summaryTTL, 30*time.Second)

	cardsTTL, err := client.TTL(ctx, featureKey(notebookID, FeatureFlashcards)).Result()
	require.NoError(t, err)
	assert.Greater(t, cardsTTL, 30*time.Minute)
}

func TestRedisStoreKeys(t *testing.T) {
	assert.Equal(t, "cramwell:study_features:nb:exam", featureKey("nb", FeatureExam))
	assert.Equal(t, []string{
		"cramwell:study_features:nb:summary",
		"cramwell:study_features:nb:exam",
		"cramwell:study_features:nb:flashcards",
	}, notebookKeys("nb"))
	assert.True(t, parseStamp(nil).IsZero())
	assert.True(t, parseStamp("garbage").IsZero())
}
