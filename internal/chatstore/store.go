// Package chatstore persists accepted chat messages and serves the recent
// history replayed to clients after chat_join.
package chatstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCapacity is how many messages the memory and Redis backends retain.
const DefaultCapacity = 200

var ErrUnknownBackend = errors.New("chatstore: unknown backend")

type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TempID    string    `json:"tempId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence collaborator. Save returns the stored ID. Recent
// returns at most limit messages, oldest first.
type Store interface {
	Save(ctx context.Context, msg Message) (string, error)
	Recent(ctx context.Context, limit int) ([]Message, error)
	Close() error
}

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

func ParseBackend(raw string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(raw))); b {
	case "":
		return BackendMemory, nil
	case BackendMemory, BackendRedis, BackendPostgres:
		return b, nil
	default:
		return "", fmt.Errorf("%w %q (expected memory, redis or postgres)", ErrUnknownBackend, raw)
	}
}

type Config struct {
	Backend  Backend
	Capacity int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	PostgresDSN string
}

// Open constructs the configured backend. Network backends are pinged before
// Open returns.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.Capacity), nil
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
			Capacity: cfg.Capacity,
		})
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}

func stamp(msg Message) Message {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
