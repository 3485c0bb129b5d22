package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cramwell/backend-go/internal/config"
	"github.com/cramwell/backend-go/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOStager downloads uploaded course documents from a bucket.
type MinIOStager struct {
	client     *minio.Client
	bucket     string
	stagingDir string
	log        *zap.Logger
}

// NewMinIOStager connects to MinIO and ensures the bucket exists.
func NewMinIOStager(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*MinIOStager, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "cramwell-uploads"
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &MinIOStager{
		client:     client,
		bucket:     bucket,
		stagingDir: cfg.StagingDir,
		log:        logger.Named(log, "minio"),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureBucket waits for MinIO to answer and creates the bucket if needed.
func (s *MinIOStager) ensureBucket(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err == nil {
			if exists {
				return nil
			}
			err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
			if err == nil || isBucketOwned(err) {
				s.log.Info("bucket ready", zap.String("bucket", s.bucket))
				return nil
			}
		}
		lastErr = err
		wait := time.Duration(attempt*2) * time.Second
		s.log.Warn("minio not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("bucket %s unavailable: %w", s.bucket, lastErr)
}

func isBucketOwned(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}

// Stage copies the object to a temporary file that keeps its extension.
func (s *MinIOStager) Stage(ctx context.Context, key string, maxSize int64) (*StagedFile, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	if maxSize > 0 && info.Size > maxSize {
		return nil, &TooLargeError{Key: key, Size: info.Size, Limit: maxSize}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	return writeTemp(s.stagingDir, key, obj)
}

// Upload stores r under key.
func (s *MinIOStager) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Ready checks that the bucket is reachable.
func (s *MinIOStager) Ready(ctx context.Context) bool {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil && ok
}

func writeTemp(dir, key string, r io.Reader) (*StagedFile, error) {
	f, err := os.CreateTemp(dir, "cramwell-*"+strings.ToLower(filepath.Ext(key)))
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	n, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("stage %s: %w", key, err)
	}

	path := f.Name()
	return &StagedFile{
		Path:    path,
		Size:    n,
		cleanup: func() error { return os.Remove(path) },
	}, nil
}
