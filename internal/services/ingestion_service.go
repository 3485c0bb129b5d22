package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	apperrors "github.com/cramwell/backend-go/internal/errors"
	"github.com/cramwell/backend-go/internal/kafka"
	"github.com/cramwell/backend-go/internal/knowledge"
	"github.com/cramwell/backend-go/internal/logger"
	"github.com/cramwell/backend-go/internal/storage"
	"go.uber.org/zap"
)

const defaultMaxFileSize = 25 * 1024 * 1024

// DefaultAllowedTypes is the upload allow-list.
var DefaultAllowedTypes = []string{"pdf", "docx", "txt", "md", "html", "htm", "csv", "xlsx", "ipynb", "pptx"}

// TextExtractor turns a file on disk into text.
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) (*knowledge.ExtractedText, error)
}

// TextSplitter splits text into token-bounded chunks.
type TextSplitter interface {
	Split(text string) []string
}

// Indexer writes and removes a notebook's vectors.
type Indexer interface {
	Upsert(ctx context.Context, notebookID string, chunks []knowledge.Chunk, meta knowledge.DocumentMeta) bool
	DeleteNotebook(ctx context.Context, notebookID string) bool
}

// CacheInvalidator drops generated artifacts of a notebook.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context, notebookID string) bool
}

// EventPublisher announces finished ingestions.
type EventPublisher interface {
	PublishIngested(ctx context.Context, event kafka.IngestedEvent) error
}

// IngestionObserver records ingestion outcomes.
type IngestionObserver interface {
	ObserveIngestion(outcome string, chunks int)
}

// SourceDocument is a local file to be ingested into a notebook.
type SourceDocument struct {
	NotebookID string
	Filename   string
	Path       string
	// FileType overrides the extension of Filename when set.
	FileType string
	// Size is read from disk when zero.
	Size int64
}

// IngestResult summarises one successful ingestion.
type IngestResult struct {
	NotebookID string
	Filename   string
	Strategy   string
	Chunks     int
}

// IngestionOptions configures an IngestionService. Zero values use the
// defaults; Stager, Events and Metrics may be nil.
type IngestionOptions struct {
	AllowedTypes []string
	MaxFileSize  int64
	Stager       storage.Stager
	Events       EventPublisher
	Metrics      IngestionObserver
	Logger       *zap.Logger
}

// IngestionService runs extract, chunk, index and cache invalidation for one
// document at a time.
type IngestionService struct {
	extractor   TextExtractor
	splitter    TextSplitter
	indexer     Indexer
	cache       CacheInvalidator
	allowed     map[string]struct{}
	maxFileSize int64
	stager      storage.Stager
	events      EventPublisher
	metrics     IngestionObserver
	log         *zap.Logger
	now         func() time.Time
}

// NewIngestionService wires the ingestion pipeline.
func NewIngestionService(extractor TextExtractor, splitter TextSplitter, indexer Indexer, cache CacheInvalidator, opts IngestionOptions) *IngestionService {
	types := opts.AllowedTypes
	if len(types) == 0 {
		types = DefaultAllowedTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[knowledge.NormalizeFileType(t)] = struct{}{}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}

	return &IngestionService{
		extractor:   extractor,
		splitter:    splitter,
		indexer:     indexer,
		cache:       cache,
		allowed:     allowed,
		maxFileSize: maxSize,
		stager:      opts.Stager,
		events:      opts.Events,
		metrics:     opts.Metrics,
		log:         logger.Named(opts.Logger, "ingestion"),
		now:         time.Now,
	}
}

// Allowed reports whether fileType is on the allow-list.
func (s *IngestionService) Allowed(fileType string) bool {
	_, ok := s.allowed[knowledge.NormalizeFileType(fileType)]
	return ok
}

// Ingest indexes doc into its notebook and invalidates the notebook's
// cached artifacts. The garbage collector always runs before it returns.
func (s *IngestionService) Ingest(ctx context.Context, doc SourceDocument) (result *IngestResult, err error) {
	defer releaseMemory()

	doc.NotebookID = strings.TrimSpace(doc.NotebookID)
	if doc.Filename == "" {
		doc.Filename = path.Base(doc.Path)
	}
	fileType := doc.FileType
	if fileType == "" {
		fileType = doc.Filename
	}
	fileType = knowledge.NormalizeFileType(fileType)

	log := s.log.With(
		zap.String("notebook_id", doc.NotebookID),
		zap.String("filename", doc.Filename),
		zap.String("file_type", fileType))

	defer func() {
		s.finish(ctx, log, doc, result, err)
	}()

	if doc.NotebookID == "" {
		return nil, fmt.Errorf("notebook id is required: %w", apperrors.ErrInvalidInput)
	}
	if !s.Allowed(fileType) {
		return nil, fmt.Errorf("%s: %w", fileType, apperrors.ErrUnsupportedType)
	}

	size := doc.Size
	if size == 0 {
		info, statErr := os.Stat(doc.Path)
		if statErr != nil {
			return nil, fmt.Errorf("stat %s: %w", doc.Filename, apperrors.ErrUnprocessable)
		}
		size = info.Size()
	}
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%d bytes: %w", size, apperrors.ErrFileTooLarge)
	}

	extracted, err := s.extractor.Extract(ctx, doc.Path, fileType)
	if err != nil {
		return nil, err
	}
	strategy := extracted.Strategy
	texts := s.splitter.Split(extracted.Text)
	extracted.Release()
	extracted = nil

	if len(texts) == 0 {
		return nil, apperrors.ErrUnprocessable
	}

	now := s.now()
	chunks := knowledge.BuildChunks(texts, doc.NotebookID, doc.Filename, now)
	texts = nil
	count := len(chunks)

	ok := s.indexer.Upsert(ctx, doc.NotebookID, chunks, knowledge.DocumentMeta{Filename: doc.Filename, ProcessedAt: now})
	chunks = nil
	if !ok {
		return nil, apperrors.ErrIndexingFailed
	}

	if !s.cache.InvalidateAll(ctx, doc.NotebookID) {
		log.Warn("cached study features could not be invalidated")
	}

	return &IngestResult{
		NotebookID: doc.NotebookID,
		Filename:   doc.Filename,
		Strategy:   strategy,
		Chunks:     count,
	}, nil
}

// IngestObject stages an uploaded object locally, ingests it and removes
// the local copy.
func (s *IngestionService) IngestObject(ctx context.Context, job kafka.IngestJob) (*IngestResult, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}
	if s.stager == nil {
		return nil, fmt.Errorf("no object stager configured: %w", apperrors.ErrBackendUnavailable)
	}

	filename := job.Filename
	if filename == "" {
		filename = path.Base(job.ObjectKey)
	}
	fileType := job.FileType
	if fileType == "" {
		fileType = filename
	}
	if !s.Allowed(fileType) {
		return nil, fmt.Errorf("%s: %w", knowledge.NormalizeFileType(fileType), apperrors.ErrUnsupportedType)
	}

	staged, err := s.stager.Stage(ctx, job.ObjectKey, s.maxFileSize)
	if err != nil {
		var tooLarge *storage.TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%s: %w", err.Error(), apperrors.ErrFileTooLarge)
		}
		return nil, apperrors.ErrBackendUnavailable.WithCause(err)
	}
	defer func() {
		if rmErr := staged.Remove(); rmErr != nil {
			s.log.Warn("staged file not removed", zap.String("path", staged.Path), zap.Error(rmErr))
		}
	}()

	return s.Ingest(ctx, SourceDocument{
		NotebookID: job.NotebookID,
		Filename:   filename,
		Path:       staged.Path,
		FileType:   fileType,
		Size:       staged.Size,
	})
}

// HandleJob adapts IngestObject to the queue consumer. Only backend
// failures are returned, so rejected documents are not redelivered.
func (s *IngestionService) HandleJob(ctx context.Context, job kafka.IngestJob) error {
	_, err := s.IngestObject(ctx, job)
	if err == nil || !retryable(err) {
		return nil
	}
	return err
}

// RemoveNotebook deletes every vector and cached artifact of notebookID.
func (s *IngestionService) RemoveNotebook(ctx context.Context, notebookID string) bool {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return false
	}
	vectors := s.indexer.DeleteNotebook(ctx, notebookID)
	cached := s.cache.InvalidateAll(ctx, notebookID)
	s.log.Info("notebook removed",
		zap.String("notebook_id", notebookID),
		zap.Bool("vectors_deleted", vectors),
		zap.Bool("cache_cleared", cached))
	return vectors && cached
}

func (s *IngestionService) finish(ctx context.Context, log *zap.Logger, doc SourceDocument, result *IngestResult, err error) {
	outcome := ingestOutcome(err)
	chunks := 0
	if result != nil {
		chunks = result.Chunks
	}
	if s.metrics != nil {
		s.metrics.ObserveIngestion(outcome, chunks)
	}

	if err != nil {
		log.Warn("ingestion failed", zap.String("outcome", outcome), zap.Error(err))
	} else {
		log.Info("document ingested", zap.String("strategy", result.Strategy), zap.Int("chunks", chunks))
	}

	if s.events == nil || doc.NotebookID == "" {
		return
	}
	event := kafka.IngestedEvent{
		NotebookID:  doc.NotebookID,
		Filename:    doc.Filename,
		Outcome:     outcome,
		Chunks:      chunks,
		ProcessedAt: s.now().UTC(),
	}
	if result != nil {
		event.Strategy = result.Strategy
	}
	if err != nil {
		event.Error = err.Error()
	}
	if pubErr := s.events.PublishIngested(ctx, event); pubErr != nil {
		log.Warn("ingested event not published", zap.Error(pubErr))
	}
}

func ingestOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, apperrors.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, apperrors.ErrUnprocessable):
		return "unprocessable"
	case errors.Is(err, apperrors.ErrIndexingFailed):
		return "indexing_failed"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

func retryable(err error) bool {
	return errors.Is(err, apperrors.ErrIndexingFailed) || errors.Is(err, apperrors.ErrBackendUnavailable)
}

func releaseMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}
