package mempool

import (
	"sync"

	"github.com/pkg/errors"
)

// SystemAllocator is the backing store a SegregatedPool draws arenas and large
// allocations from. Free is called exactly once per buffer returned by Alloc.
type SystemAllocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// HeapAllocator obtains zeroed buffers from the Go heap. Free is a no-op; the
// garbage collector reclaims the buffer once the pool drops it.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, &AllocationError{Size: size, Err: errors.Errorf("invalid size %d", size)}
	}
	return make([]byte, size), nil
}

func (HeapAllocator) Free([]byte) error { return nil }

// TrackingAllocator wraps a SystemAllocator and counts the buffers it has
// handed out and not yet seen freed. It is safe for concurrent use.
type TrackingAllocator struct {
	next SystemAllocator

	mu        sync.Mutex
	live      int
	liveBytes int
	allocs    int
	frees     int
}

// NewTrackingAllocator wraps next, or the heap allocator if next is nil.
func NewTrackingAllocator(next SystemAllocator) *TrackingAllocator {
	if next == nil {
		next = HeapAllocator{}
	}
	return &TrackingAllocator{next: next}
}

func (t *TrackingAllocator) Alloc(size int) ([]byte, error) {
	buf, err := t.next.Alloc(size)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.live++
	t.liveBytes += len(buf)
	t.allocs++
	t.mu.Unlock()
	return buf, nil
}

func (t *TrackingAllocator) Free(buf []byte) error {
	t.mu.Lock()
	t.live--
	t.liveBytes -= len(buf)
	t.frees++
	t.mu.Unlock()
	return t.next.Free(buf)
}

// Live returns the number of outstanding buffers and their total size.
func (t *TrackingAllocator) Live() (buffers, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live, t.liveBytes
}

// Counts returns the total number of Alloc and Free calls observed.
func (t *TrackingAllocator) Counts() (allocs, frees int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocs, t.frees
}

var (
	_ SystemAllocator = HeapAllocator{}
	_ SystemAllocator = (*TrackingAllocator)(nil)
	_ SystemAllocator = MmapAllocator{}
)
