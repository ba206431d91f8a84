package chatstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_RollingWindow(t *testing.T) {
	addr := os.Getenv("AERO_LIVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AERO_LIVE_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "live:chat:test:" + uuid.NewString()
	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Key: key, Capacity: 2})
	require.NoError(t, err)
	defer func() {
		_ = s.rdb.Del(context.Background(), key).Err()
		_ = s.Close()
	}()

	for _, text := range []string{"one", "two", "three"} {
		_, err := s.Save(ctx, Message{Username: "alice", Role: "viewer", Content: text, TempID: "t-" + text})
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, "three", got[1].Content)
	assert.Equal(t, "t-three", got[1].TempID)
}

func TestPostgresStore_SaveAndRecent(t *testing.T) {
	dsn := os.Getenv("AERO_LIVE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AERO_LIVE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	marker := uuid.NewString()
	first, err := s.Save(ctx, Message{Username: "alice", Role: "viewer", Content: "first " + marker})
	require.NoError(t, err)
	second, err := s.Save(ctx, Message{Username: "bob", Role: "broadcaster", Content: "second " + marker})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, second, got[1].ID)
	assert.Equal(t, "broadcaster", got[1].Role)
}
