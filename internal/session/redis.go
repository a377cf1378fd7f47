package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// RedisStore keeps each session as a JSON document under its own key
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Keys are namespaced by prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// DialRedis connects to Redis and verifies the connection. The client can
// back a RedisStore and the Redis event transport at once
func DialRedis(
	ctx context.Context, addr, password string, db int,
) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectStore, err)
	}
	return client, nil
}

func (s *RedisStore) Get(
	ctx context.Context, id api.SessionID,
) (*api.WorkflowState, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	data, err := s.client.Get(ctx, s.keyFor(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var st api.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecodeState, err)
	}
	return &st, true, nil
}

func (s *RedisStore) Set(
	ctx context.Context, id api.SessionID, st *api.WorkflowState,
) error {
	if id == "" {
		return ErrEmptyID
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeState, err)
	}
	return s.client.Set(ctx, s.keyFor(id), data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id api.SessionID) error {
	if id == "" {
		return ErrEmptyID
	}
	return s.client.Del(ctx, s.keyFor(id)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) keyFor(id api.SessionID) string {
	return s.prefix + ":session:" + string(id)
}
