package pipeline

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	pipelineKeyPrefix = "pipeline:"
	eventKeyPrefix    = "event:"

	// expiryGrace keeps the record in storage past its retention deadline so
	// the reaper can record the expired transition before deleting. A bare key
	// TTL would remove records behind the reaper's back.
	expiryGrace = 24 * time.Hour

	// eventBindTTL bounds how long a delivery id stays deduplicated.
	eventBindTTL = 7 * 24 * time.Hour
)

var _ model.PipelineStore = (*RedisStore)(nil)

// RedisStore keeps pipeline records as JSON values under prefixed keys.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pipelineKey(pipelineID string) string {
	return pipelineKeyPrefix + pipelineID
}

func eventKey(dedupKey string) string {
	return eventKeyPrefix + dedupKey
}

// Get loads a pipeline or fails with ErrPipelineNotFound.
func (s *RedisStore) Get(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	data, err := s.client.Get(ctx, pipelineKey(pipelineID)).Bytes()
	if err != nil {
		if errm.Is(err, redis.Nil) {
			return nil, errm.Wrap(model.ErrPipelineNotFound, pipelineID)
		}
		return nil, errm.Wrap(err, "get pipeline")
	}
	var p model.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errm.Wrap(err, "decode pipeline record")
	}
	return &p, nil
}

// Save writes the full record, keeping any TTL already armed on the key.
func (s *RedisStore) Save(ctx context.Context, p *model.Pipeline) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errm.Wrap(err, "encode pipeline record")
	}
	if err := s.client.Set(ctx, pipelineKey(p.PipelineID), data, redis.KeepTTL).Err(); err != nil {
		return errm.Wrap(err, "save pipeline")
	}
	return nil
}

// SetExpiry arms the storage-level TTL with grace on top of the retention.
func (s *RedisStore) SetExpiry(ctx context.Context, pipelineID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, pipelineKey(pipelineID), ttl+expiryGrace).Err(); err != nil {
		return errm.Wrap(err, "set pipeline expiry")
	}
	return nil
}

// Delete removes the record.
func (s *RedisStore) Delete(ctx context.Context, pipelineID string) error {
	if err := s.client.Del(ctx, pipelineKey(pipelineID)).Err(); err != nil {
		return errm.Wrap(err, "delete pipeline")
	}
	return nil
}

// Scan enumerates pipeline ids one SCAN batch at a time. The cursor follows
// redis semantics: pass the returned cursor back in, zero means wrapped.
func (s *RedisStore) Scan(ctx context.Context, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, pipelineKeyPrefix+"*", count).Result()
	if err != nil {
		return nil, 0, errm.Wrap(err, "scan pipelines")
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(pipelineKeyPrefix):])
	}
	return ids, next, nil
}

// BindEvent maps a delivery dedup key to a pipeline id, create-if-absent.
func (s *RedisStore) BindEvent(ctx context.Context, dedupKey, pipelineID string) (string, bool, error) {
	created, err := s.client.SetNX(ctx, eventKey(dedupKey), pipelineID, eventBindTTL).Result()
	if err != nil {
		return "", false, errm.Wrap(err, "bind event")
	}
	if created {
		return pipelineID, true, nil
	}
	existing, err := s.client.Get(ctx, eventKey(dedupKey)).Result()
	if err != nil {
		return "", false, errm.Wrap(err, "load existing event binding")
	}
	return existing, false, nil
}
