package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// overrideKeyPrefix namespaces per-topic runtime overrides in Redis.
const overrideKeyPrefix = "aigw:topic_config:"

// OverrideStore fetches the persisted runtime override for a topic.
// A (nil, nil) return means no override is seeded.
type OverrideStore interface {
	Fetch(ctx context.Context, topicID string) (*RuntimeOverride, error)
}

// RedisOverrideStore reads overrides from Redis as JSON blobs keyed by
// topic id. Seeding and updates happen through administrative flows
// outside this service.
type RedisOverrideStore struct {
	client redis.UniversalClient
}

// NewRedisOverrideStore creates an override store backed by the given client.
func NewRedisOverrideStore(client redis.UniversalClient) *RedisOverrideStore {
	return &RedisOverrideStore{client: client}
}

// Fetch implements OverrideStore.
func (s *RedisOverrideStore) Fetch(ctx context.Context, topicID string) (*RuntimeOverride, error) {
	raw, err := s.client.Get(ctx, overrideKeyPrefix+topicID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch topic override %s: %w", topicID, err)
	}

	var override RuntimeOverride
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return nil, fmt.Errorf("decode topic override %s: %w", topicID, err)
	}
	return &override, nil
}
