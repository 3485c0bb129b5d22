package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cramwell:study_features:"

// RedisStore keeps one hash per (notebook, feature) with the content and
// its created and updated timestamps. The ttl applies to each feature key on
// its own write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a store keyed under the artifacts prefix. A zero
// ttl keeps entries until invalidated.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

const (
	contentField   = "content"
	createdAtField = "created_at"
	updatedAtField = "updated_at"
)

func featureKey(notebookID string, feature FeatureType) string {
	return redisKeyPrefix + notebookID + ":" + string(feature)
}

func notebookKeys(notebookID string) []string {
	keys := make([]string, 0, len(FeatureTypes))
	for _, ft := range FeatureTypes {
		keys = append(keys, featureKey(notebookID, ft))
	}
	return keys
}

func (s *RedisStore) Get(ctx context.Context, notebookID string, feature FeatureType) (*Entry, error) {
	values, err := s.client.HMGet(ctx, featureKey(notebookID, feature), contentField, createdAtField, updatedAtField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(values) == 0 || values[0] == nil {
		return nil, ErrNotFound
	}

	content, _ := values[0].(string)
	return &Entry{
		NotebookID:  notebookID,
		FeatureType: feature,
		Content:     content,
		CreatedAt:   parseStamp(values[1]),
		UpdatedAt:   parseStamp(values[2]),
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	key := featureKey(entry.NotebookID, entry.FeatureType)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, contentField, entry.Content, updatedAtField, entry.UpdatedAt.Format(time.RFC3339Nano))
		pipe.HSetNX(ctx, key, createdAtField, entry.CreatedAt.Format(time.RFC3339Nano))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, notebookID string, feature FeatureType) error {
	return s.client.Del(ctx, featureKey(notebookID, feature)).Err()
}

// DeleteNotebook drops every feature key of notebookID in one command.
func (s *RedisStore) DeleteNotebook(ctx context.Context, notebookID string) error {
	return s.client.Del(ctx, notebookKeys(notebookID)...).Err()
}

func parseStamp(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
