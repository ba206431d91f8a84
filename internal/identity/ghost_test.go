package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGhostPool_AllocatesSmallestUnused(t *testing.T) {
	p := NewGhostPool()

	assert.Equal(t, "Ghost_s1", p.Allocate())
	assert.Equal(t, "Ghost_s2", p.Allocate())
	assert.Equal(t, "Ghost_s3", p.Allocate())

	require.NoError(t, p.Release("Ghost_s2"))
	assert.Equal(t, "Ghost_s2", p.Allocate(), "released number is reused first")
	assert.Equal(t, "Ghost_s4", p.Allocate())
}

func TestGhostPool_ReleaseOrderDoesNotMatter(t *testing.T) {
	p := NewGhostPool()
	for i := 0; i < 5; i++ {
		p.Allocate()
	}

	require.NoError(t, p.Release("Ghost_s4"))
	require.NoError(t, p.Release("Ghost_s1"))
	require.NoError(t, p.Release("Ghost_s3"))

	assert.Equal(t, "Ghost_s1", p.Allocate())
	assert.Equal(t, "Ghost_s3", p.Allocate())
	assert.Equal(t, "Ghost_s4", p.Allocate())
	assert.Equal(t, "Ghost_s6", p.Allocate())
	assert.Equal(t, 6, p.Outstanding())
}

func TestGhostPool_ReleaseTopThenAllocate(t *testing.T) {
	p := NewGhostPool()
	p.Allocate()
	p.Allocate()

	require.NoError(t, p.Release("Ghost_s2"))
	require.NoError(t, p.Release("Ghost_s1"))
	assert.Equal(t, 0, p.Outstanding())
	assert.Equal(t, "Ghost_s1", p.Allocate())
	assert.Equal(t, "Ghost_s2", p.Allocate())
	assert.Equal(t, "Ghost_s3", p.Allocate())
}

func TestGhostPool_ReleaseErrors(t *testing.T) {
	p := NewGhostPool()
	p.Allocate()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "real name", in: "Alice", want: ErrNotGhostName},
		{name: "no number", in: "Ghost_s", want: ErrNotGhostName},
		{name: "zero", in: "Ghost_s0", want: ErrNotGhostName},
		{name: "leading zero", in: "Ghost_s01", want: ErrNotGhostName},
		{name: "never allocated", in: "Ghost_s7", want: ErrNotAllocated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, p.Release(tt.in), tt.want)
		})
	}

	require.NoError(t, p.Release("Ghost_s1"))
	assert.ErrorIs(t, p.Release("Ghost_s1"), ErrNotAllocated, "double release")
}

func TestGhostPool_DistinctUnderSerialisedConcurrency(t *testing.T) {
	p := NewGhostPool()
	var mu sync.Mutex
	var wg sync.WaitGroup
	names := make(chan string, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			names <- p.Allocate()
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for n := range names {
		require.False(t, seen[n], "duplicate ghost name %s", n)
		seen[n] = true
	}
	assert.Len(t, seen, 100)
	assert.True(t, seen["Ghost_s1"])
	assert.True(t, seen["Ghost_s100"])
}

func TestIsGhostName(t *testing.T) {
	assert.True(t, IsGhostName("Ghost_s12"))
	assert.False(t, IsGhostName("ghost_s12"))
	assert.False(t, IsGhostName("Ghost_sX"))
}
