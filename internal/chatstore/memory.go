package chatstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the most recent messages in a fixed-size ring.
type MemoryStore struct {
	mu   sync.Mutex
	ring []Message
	head int
	size int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{ring: make([]Message, capacity)}
}

func (s *MemoryStore) Save(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg = stamp(msg)
	msg.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.head] = msg
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	return msg.ID, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(limit, s.size)
	if n <= 0 {
		return nil, nil
	}
	out := make([]Message, n)
	start := s.head - n
	if start < 0 {
		start += len(s.ring)
	}
	for i := range out {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
