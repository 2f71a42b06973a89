package repositories

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIPLockoutStore keeps IP lockout deadlines as expiring keys so every
// gate instance reports the same countdown
type RedisIPLockoutStore struct {
	client    redis.Cmdable
	namespace string
	now       func() time.Time
}

// NewRedisIPLockoutStore creates a new RedisIPLockoutStore
func NewRedisIPLockoutStore(client redis.Cmdable, namespace string) *RedisIPLockoutStore {
	return &RedisIPLockoutStore{client: client, namespace: namespace, now: time.Now}
}

func (s *RedisIPLockoutStore) key(ip string) string {
	return s.namespace + ":iplock:" + ip
}

// Get returns the stored deadline or nil
func (s *RedisIPLockoutStore) Get(ctx context.Context, ip string) (*time.Time, error) {
	raw, err := s.client.Get(ctx, s.key(ip)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	until := time.UnixMilli(ms).UTC()
	return &until, nil
}

// SetIfAbsent stores the deadline with SET NX; the key expires with the lock
func (s *RedisIPLockoutStore) SetIfAbsent(ctx context.Context, ip string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.SetNX(ctx, s.key(ip), strconv.FormatInt(until.UnixMilli(), 10), ttl).Err()
}
