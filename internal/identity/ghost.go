// Package identity allocates anonymous "ghost" display names for viewers
// that join without an authenticated profile.
package identity

import (
	"container/heap"
	"errors"
	"strconv"
	"strings"
)

// GhostPrefix is prepended to the allocated number.
const GhostPrefix = "Ghost_s"

var (
	ErrNotGhostName = errors.New("not a ghost name")
	ErrNotAllocated = errors.New("ghost name not allocated")
)

// GhostPool hands out the smallest positive integer that is not currently
// allocated. Released numbers sit in a min-heap; numbers above the
// high-water mark have never been handed out.
//
// GhostPool is not safe for concurrent use; the caller serialises access.
type GhostPool struct {
	next  int
	freed intHeap
	inUse map[int]struct{}
}

func NewGhostPool() *GhostPool {
	return &GhostPool{
		next:  1,
		inUse: make(map[int]struct{}),
	}
}

// Allocate returns "Ghost_s<n>" for the smallest free n.
func (p *GhostPool) Allocate() string {
	var n int
	if p.freed.Len() > 0 {
		n = heap.Pop(&p.freed).(int)
	} else {
		n = p.next
		p.next++
	}
	p.inUse[n] = struct{}{}
	return GhostName(n)
}

// Release returns the number behind name to the pool.
func (p *GhostPool) Release(name string) error {
	n, err := ParseGhostName(name)
	if err != nil {
		return err
	}
	if _, ok := p.inUse[n]; !ok {
		return ErrNotAllocated
	}
	delete(p.inUse, n)

	heap.Push(&p.freed, n)
	return nil
}

// Outstanding reports how many names are currently allocated.
func (p *GhostPool) Outstanding() int {
	return len(p.inUse)
}

func GhostName(n int) string {
	return GhostPrefix + strconv.Itoa(n)
}

// IsGhostName reports whether name has the shape of an allocated ghost name.
func IsGhostName(name string) bool {
	_, err := ParseGhostName(name)
	return err == nil
}

func ParseGhostName(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, GhostPrefix)
	if !ok || rest == "" {
		return 0, ErrNotGhostName
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 || strconv.Itoa(n) != rest {
		return 0, ErrNotGhostName
	}
	return n, nil
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
