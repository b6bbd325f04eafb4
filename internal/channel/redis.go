package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps channel values in Redis as JSON scalars under
// <prefix><path>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store for addr, which is either a host:port pair
// or a redis:// URL. It does not dial; reachability is established by the
// channel's first Ping so that an absent peer never fails startup.
func NewRedisStore(addr, prefix string) (*RedisStore, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	// The channel owns reconnection; a single attempt per call keeps every
	// operation inside its timeout.
	opts.MaxRetries = -1

	return &RedisStore{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (s *RedisStore) key(path string) string {
	return s.prefix + path
}

func (s *RedisStore) Get(ctx context.Context, path string) (any, bool, error) {
	raw, err := s.client.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Treat non-JSON payloads as plain strings.
		return string(raw), true, nil
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := s.client.Set(ctx, s.key(path), raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, s.key(path)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", path, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
