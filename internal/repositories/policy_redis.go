package repositories

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisPolicySource reads policy parameters from one hash per scope
// ("<namespace>:policy:<scope>", field = parameter key)
type RedisPolicySource struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisPolicySource creates a new RedisPolicySource
func NewRedisPolicySource(client redis.Cmdable, namespace string) *RedisPolicySource {
	return &RedisPolicySource{client: client, namespace: namespace}
}

func (s *RedisPolicySource) hashKey(scope string) string {
	return s.namespace + ":policy:" + scope
}

// Lookup implements policy.Source
func (s *RedisPolicySource) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hashKey(scope), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes one parameter; used by tooling and tests
func (s *RedisPolicySource) Set(ctx context.Context, scope, key, value string) error {
	return s.client.HSet(ctx, s.hashKey(scope), key, value).Err()
}
