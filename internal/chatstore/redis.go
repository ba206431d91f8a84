package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "live:chat:recent"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key names the list holding the rolling window, newest first.
	Key      string
	Capacity int
}

// RedisStore keeps a rolling window of JSON-encoded messages in one list.
type RedisStore struct {
	rdb      *redis.Client
	key      string
	capacity int
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("chatstore: redis address is required")
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("chatstore: ping redis %s: %w", opts.Addr, err)
	}
	return &RedisStore{rdb: rdb, key: opts.Key, capacity: opts.Capacity}, nil
}

func (s *RedisStore) Save(ctx context.Context, msg Message) (string, error) {
	msg = stamp(msg)
	msg.ID = uuid.NewString()
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, 0, int64(s.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("chatstore: save: %w", err)
	}
	return msg.ID, nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	vals, err := s.rdb.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("chatstore: recent: %w", err)
	}
	out := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	reverse(out)
	return out, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
