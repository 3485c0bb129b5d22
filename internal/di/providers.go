package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cramwell/backend-go/internal/cache"
	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/database"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/knowledge"
	"github.com/cramwell/backend-go/internal/metrics"
	"github.com/cramwell/backend-go/internal/services"
	"github.com/cramwell/backend-go/internal/storage"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const connectTimeout = 30 * time.Second

// RegisterProviders registers every constructor. Backends are built lazily,
// so a command only connects to what it invokes.
func RegisterProviders(c *dig.Container, cfg *config.Config, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *zap.Logger { return log },
		func() *Resources { return &Resources{} },
		newLogrusLogger,
		metrics.New,
		newTokenizer,
		newChunker,
		newExtractor,
		newEmbedder,
		newGenerator,
		newVectorIndex,
		newVectorGateway,
		newQueryEngine,
		newCacheStore,
		newArtifactCache,
		newStager,
		newEventPublisher,
		newIngestionService,
		newStudyService,
		newMemoryMonitor,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return fmt.Errorf("register provider: %w", err)
		}
	}
	return nil
}

func newLogrusLogger(cfg *config.Config) *logrus.Logger {
	l := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: &logrus.JSONFormatter{},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

func newTokenizer(cfg *config.Config, log *zap.Logger) knowledge.Tokenizer {
	tok, err := knowledge.NewTiktokenTokenizer(cfg.AI.EmbeddingModel)
	if err != nil {
		log.Warn("tokenizer unavailable, chunking by characters", zap.Error(err))
		return nil
	}
	return tok
}

func newChunker(cfg *config.Config, tok knowledge.Tokenizer) *knowledge.Chunker {
	return knowledge.NewChunker(tok, cfg.Knowledge.ChunkMaxTokens, cfg.Knowledge.ChunkOverlapTokens)
}

func newExtractor(cfg *config.Config, m *metrics.Metrics, res *Resources, log *zap.Logger) (*knowledge.Extractor, error) {
	ex := cfg.Knowledge.Extraction
	if err := knowledge.SetUnidocLicense(ex.UnidocLicenseKey); err != nil {
		log.Warn("unidoc license not applied", zap.Error(err))
	}

	var ocr knowledge.ExtractionStrategy
	if ex.DocumentAI.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err := knowledge.NewDocumentAIStrategy(ctx, knowledge.DocumentAIOptions{
			ProjectID:   ex.DocumentAI.ProjectID,
			Location:    ex.DocumentAI.Location,
			ProcessorID: ex.DocumentAI.ProcessorID,
		})
		if err != nil {
			return nil, err
		}
		res.OnClose(s.Close)
		ocr = s
	}

	quality := knowledge.DefaultQualityChecker()
	if ex.MinTextLength > 0 {
		quality.MinLength = ex.MinTextLength
	}
	if ex.MaxNonAlnumRatio > 0 {
		quality.MaxNonAlnumRatio = ex.MaxNonAlnumRatio
	}
	if ex.RatioMinLength > 0 {
		quality.RatioMinLength = ex.RatioMinLength
	}
	if len(ex.Indicators) > 0 {
		quality.Indicators = ex.Indicators
	}

	dedicated, fast, fallback := knowledge.DefaultStrategies(ex.CollectImages, ocr)
	return knowledge.NewExtractor(knowledge.ExtractorOptions{
		Quality:   quality,
		Dedicated: dedicated,
		Fast:      fast,
		Fallback:  fallback,
		Metrics:   m,
		Logger:    log,
	}), nil
}

func openAIOptions(cfg *config.Config) knowledge.OpenAIOptions {
	return knowledge.OpenAIOptions{APIKey: cfg.AI.APIKey, BaseURL: cfg.AI.BaseURL}
}

func newEmbedder(cfg *config.Config) knowledge.Embedder {
	return knowledge.NewOpenAIEmbedder(openAIOptions(cfg), cfg.AI.EmbeddingModel)
}

func newGenerator(cfg *config.Config) knowledge.Generator {
	return knowledge.NewOpenAIGenerator(openAIOptions(cfg), cfg.AI.ChatModel)
}

func newVectorIndex(cfg *config.Config, res *Resources) (knowledge.VectorIndex, error) {
	vs := cfg.Knowledge.VectorStore
	switch vs.Provider {
	case "milvus":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		idx, err := knowledge.NewMilvusIndex(ctx, knowledge.MilvusOptions{
			Address:    vs.Milvus.Address,
			Username:   vs.Milvus.Username,
			Password:   vs.Milvus.Password,
			Database:   vs.Milvus.Database,
			Collection: vs.IndexName,
			VectorSize: vs.Dimension,
			Distance:   vs.Metric,
			UseTLS:     vs.Milvus.TLS,
		})
		if err != nil {
			return nil, err
		}
		res.OnClose(idx.Close)
		return idx, nil
	case "qdrant":
		return knowledge.NewQdrantIndex(knowledge.QdrantOptions{
			Endpoint:   vs.Qdrant.Endpoint,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.IndexName,
			VectorSize: vs.Dimension,
			Distance:   vs.Metric,
			Timeout:    vs.Qdrant.Timeout,
		}), nil
	case "memory":
		return knowledge.NewMemoryVectorIndex(vs.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", vs.Provider)
	}
}

func newVectorGateway(index knowledge.VectorIndex, embedder knowledge.Embedder, m *metrics.Metrics, log *zap.Logger) *knowledge.VectorGateway {
	return knowledge.NewVectorGateway(index, embedder, m, log)
}

func newQueryEngine(cfg *config.Config, gateway *knowledge.VectorGateway, generator knowledge.Generator, m *metrics.Metrics, log *zap.Logger) (*knowledge.QueryEngine, error) {
	formatter, err := knowledge.NewResponseFormatter(cfg.Knowledge.ResponseTemplate)
	if err != nil {
		return nil, fmt.Errorf("load response template: %w", err)
	}
	return knowledge.NewQueryEngine(gateway, generator, knowledge.QueryEngineOptions{
		TopK:        cfg.Knowledge.TopK,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Formatter:   formatter,
		Metrics:     m,
		Logger:      log,
	}), nil
}

func openGorm(cfg *config.Config, m *metrics.Metrics, res *Resources, logrusLogger *logrus.Logger) (*gorm.DB, error) {
	db, err := database.OpenPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	poolMetrics := database.NewPoolMetrics(sqlDB, m.Registry(), logrusLogger)
	poolMetrics.Collect()
	res.AddHealthCheck(database.NewHealthChecker("postgres", sqlDB, logrusLogger))
	res.OnClose(sqlDB.Close)
	return db, nil
}

func newCacheStore(cfg *config.Config, m *metrics.Metrics, res *Resources, logrusLogger *logrus.Logger) (cache.Store, error) {
	switch cfg.Knowledge.Cache.Provider {
	case "postgres":
		db, err := openGorm(cfg, m, res, logrusLogger)
		if err != nil {
			return nil, err
		}
		return cache.NewPostgresStore(db), nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		rdb, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		res.AddHealthCheck(database.NewHealthChecker("redis", database.RedisPinger{Client: rdb}, logrusLogger))
		res.OnClose(rdb.Close)
		return cache.NewRedisStore(rdb, cfg.Knowledge.Cache.TTL), nil
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Knowledge.Cache.Provider)
	}
}

func newArtifactCache(store cache.Store, m *metrics.Metrics, log *zap.Logger) *cache.ArtifactCache {
	return cache.NewArtifactCache(store, m, log)
}

func newStager(cfg *config.Config, log *zap.Logger) (storage.Stager, error) {
	switch cfg.Storage.Provider {
	case "minio":
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return storage.NewMinIOStager(ctx, cfg.Storage, log)
	default:
		return storage.NewLocalStager(cfg.Storage.StagingDir), nil
	}
}

// newEventPublisher returns a nil publisher when the queue is disabled.
func newEventPublisher(cfg *config.Config, res *Resources, log *zap.Logger) (services.EventPublisher, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	p, err := kafka.NewProducer(cfg.Queue.Brokers, cfg.Queue.IngestTopic, cfg.Queue.EventTopic, log)
	if err != nil {
		return nil, err
	}
	res.OnClose(p.Close)
	return p, nil
}

func newIngestionService(
	cfg *config.Config,
	extractor *knowledge.Extractor,
	chunker *knowledge.Chunker,
	gateway *knowledge.VectorGateway,
	artifacts *cache.ArtifactCache,
	stager storage.Stager,
	events services.EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *services.IngestionService {
	return services.NewIngestionService(extractor, chunker, gateway, artifacts, services.IngestionOptions{
		AllowedTypes: cfg.Knowledge.AllowedTypes,
		MaxFileSize:  cfg.Knowledge.MaxFileSize,
		Stager:       stager,
		Events:       events,
		Metrics:      m,
		Logger:       log,
	})
}

func newStudyService(cfg *config.Config, engine *knowledge.QueryEngine, artifacts *cache.ArtifactCache, log *zap.Logger) *services.StudyService {
	return services.NewStudyService(engine, artifacts, services.StudyOptions{
		DedupeGeneration: cfg.Knowledge.Cache.DedupeGeneration,
		Logger:           log,
	})
}

func newMemoryMonitor(cfg *config.Config, m *metrics.Metrics, log *zap.Logger) *services.MemoryMonitor {
	return services.NewMemoryMonitor(cfg.Monitor.Interval, cfg.Monitor.HeapThresholdBytes, m, log)
}
