package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxUpdateRetries = 4
	scanBatchSize    = 500
)

// Redis implements [Store] on top of a go-redis client. Every key is namespaced
// with an optional prefix so several deployments can share one Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis creates a [Redis] store. prefix is prepended verbatim to every key,
// e.g. "dash:" turns "session:abc" into "dash:session:abc".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

func (s *Redis) key(k string) string {
	return s.prefix + k
}

// Get returns the value stored under key, or [ErrNotFound].
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Set stores value under key with the given ttl.
func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Keys returns every key matching the glob pattern, without the store prefix.
// This is an O(n) scan intended for admin paths only.
func (s *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.key(pattern), scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, k := range batch {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

// Increment adds amount to the integer stored at key, creating it at zero.
func (s *Redis) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, s.key(key), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Expire sets a ttl on an existing key.
func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Take atomically returns and deletes the value under key.
func (s *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

// Update runs fn against the current value inside a WATCH/MULTI transaction and
// writes the result with the key's TTL kept. Contention is retried a bounded
// number of times before [ErrConflict] is returned. Errors returned by fn are
// passed through unchanged.
func (s *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := s.key(key)

	for i := 0; i < maxUpdateRetries; i++ {
		var fnErr error

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, k).Bytes()
			if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				fnErr = err
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, k, next, redis.SetArgs{KeepTTL: true})
				return nil
			})
			return err
		}, k)

		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return mapErr(err)
		}
	}

	return ErrConflict
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
