package di

import (
	"context"
	"errors"
	"testing"

	"github.com/cramwell/backend-go/internal/cache"
	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/knowledge"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "cramwell", Version: "test", Env: "development"},
		Log: config.LogConfig{Level: "warn"},
		AI: config.AIConfig{
			ChatModel:           "gpt-4o-mini",
			Temperature:         0.1,
			MaxTokens:           2000,
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
		},
		Knowledge: config.KnowledgeConfig{
			ChunkMaxTokens:     200,
			ChunkOverlapTokens: 20,
			TopK:               5,
			AllowedTypes:       []string{"txt", "md"},
			MaxFileSize:        1024,
			VectorStore: config.VectorStoreConfig{
				Provider:  "memory",
				IndexName: "test_index",
				Dimension: 16,
				Metric:    "cosine",
			},
			Cache: config.CacheConfig{Provider: "memory"},
		},
		Storage: config.StorageConfig{Provider: "local", StagingDir: t.TempDir()},
	}
}

func TestInitContainer_BuildsServicesFromMemoryBackends(t *testing.T) {
	c, err := InitContainer(memoryConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, c, GetContainer())

	err = Invoke(func(ingest *services.IngestionService, study *services.StudyService, artifacts *cache.ArtifactCache, res *Resources) {
		assert.True(t, ingest.Allowed("md"))
		assert.False(t, ingest.Allowed("pdf"))

		ctx := context.Background()
		require.True(t, artifacts.Put(ctx, "nb", cache.FeatureSummary, "cached"))
		content, hit, err := study.Generate(ctx, "nb", "summary")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "cached", content)

		assert.Empty(t, res.HealthChecks())
		assert.NoError(t, res.Close())
	})
	require.NoError(t, err)
}

func TestInitContainer_NoAPIKeyUsesNoopBackends(t *testing.T) {
	c, err := InitContainer(memoryConfig(t), zap.NewNop())
	require.NoError(t, err)

	err = c.Invoke(func(embedder knowledge.Embedder, generator knowledge.Generator, events services.EventPublisher) {
		assert.False(t, embedder.Ready())
		assert.False(t, generator.Ready())
		assert.Nil(t, events)
	})
	require.NoError(t, err)
}

func TestInitContainer_UnknownProviderFailsOnInvoke(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Knowledge.VectorStore.Provider = "pinecone"

	c, err := InitContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Invoke(func(knowledge.VectorIndex) {})
	assert.Error(t, err)
}

func TestResources_CloseRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []int
	res := &Resources{}
	res.OnClose(func() error { order = append(order, 1); return nil })
	res.OnClose(func() error { order = append(order, 2); return errors.New("boom") })

	err := res.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, res.Close())
}
