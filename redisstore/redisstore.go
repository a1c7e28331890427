// Package redisstore keeps OAuth state tokens in Redis so several API
// replicas can share them.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mael-queau/roboct0-api/oauth"
)

const keyPrefix = "oauth:state:"

// StateStore is an oauth.StateStore on Redis. Keys outlive oauth.StateTTL so
// a late callback is still reported as expired rather than unknown; Redis
// evicts them afterwards, which makes PurgeBefore a no-op.
type StateStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// New returns a StateStore over rdb.
func New(rdb redis.UniversalClient) *StateStore {
	return &StateStore{rdb: rdb, ttl: 2 * oauth.StateTTL}
}

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *StateStore) Save(ctx context.Context, value string, createdAt time.Time) error {
	ok, err := s.rdb.SetNX(ctx, keyPrefix+value, createdAt.UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state %s already exists", value)
	}
	return nil
}

// Take uses GETDEL, so only one caller ever sees a given token.
func (s *StateStore) Take(ctx context.Context, value string) (time.Time, bool, error) {
	raw, err := s.rdb.GetDel(ctx, keyPrefix+value).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse state timestamp: %w", err)
	}
	return createdAt, true, nil
}

func (s *StateStore) PurgeBefore(context.Context, time.Time) (int64, error) { return 0, nil }
