package statscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("statscache: no cached stats")

// Store is the slice of redis the cache needs.
type Store interface {
	Put(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (map[string]string, error)
}

// RedisStore keeps one hash per symbol.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore { return &RedisStore{rdb: rdb} }

// Put replaces the hash fields and refreshes the TTL in one transaction.
func (s *RedisStore) Put(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fields)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}
