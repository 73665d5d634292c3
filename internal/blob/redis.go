package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blob:"

// RedisStore keeps each object as a plain string value under a "blob:"-prefixed key.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Write(ctx context.Context, path string, data []byte) error {
	if err := s.client.Set(ctx, keyPrefix+path, data, 0).Err(); err != nil {
		return classify(path, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	if err != nil {
		return nil, classify(path, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	if err := s.client.Del(ctx, keyPrefix+path).Err(); err != nil {
		return classify(path, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+prefix+"*", 100).Result()
		if err != nil {
			return nil, classify(prefix, err)
		}
		for _, key := range keys {
			paths = append(paths, strings.TrimPrefix(key, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return paths, nil
		}
	}
}

// classify translates redis failures into the package sentinels while keeping
// the original error in the chain.
func classify(path string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case hasAnyPrefix(err.Error(), "NOAUTH", "NOPERM", "WRONGPASS"):
		return fmt.Errorf("%s: %w: %v", path, ErrUnauthorized, err)
	case strings.Contains(err.Error(), "OOM"):
		return fmt.Errorf("%s: %w: %v", path, ErrQuotaExceeded, err)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
