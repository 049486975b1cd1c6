package mempool

import (
	"sync"
	"unsafe"
)

// SafeSlotPool is a mutex-protected wrapper around SlotPool for callers that
// share one pool between goroutines. Every call pays for the lock; one pool
// per goroutine is faster when the workload allows it.
type SafeSlotPool[T any] struct {
	mu sync.Mutex
	p  *SlotPool[T]
}

// NewSafeSlotPool creates a SafeSlotPool. Arguments are as for NewSlotPool.
func NewSafeSlotPool[T any](initialCapacity int, opts ...Option) *SafeSlotPool[T] {
	return &SafeSlotPool[T]{p: NewSlotPool[T](initialCapacity, opts...)}
}

func (s *SafeSlotPool[T]) Allocate() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Allocate()
}

func (s *SafeSlotPool[T]) Deallocate(ptr *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Deallocate(ptr)
}

func (s *SafeSlotPool[T]) SetCheckMode(m CheckMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.SetCheckMode(m)
}

func (s *SafeSlotPool[T]) Metrics() SlotPoolMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Metrics()
}

func (s *SafeSlotPool[T]) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Release()
}

// SafeSegregatedPool is a mutex-protected wrapper around SegregatedPool.
type SafeSegregatedPool struct {
	mu sync.Mutex
	p  *SegregatedPool
}

// NewSafeSegregatedPool creates a SafeSegregatedPool. Arguments are as for
// NewSegregatedPool.
func NewSafeSegregatedPool(blockSize int, opts ...Option) *SafeSegregatedPool {
	return &SafeSegregatedPool{p: NewSegregatedPool(blockSize, opts...)}
}

func (s *SafeSegregatedPool) AllocBytes(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.AllocBytes(n)
}

func (s *SafeSegregatedPool) FreeBytes(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.FreeBytes(b)
}

func (s *SafeSegregatedPool) Deallocate(ptr unsafe.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Deallocate(ptr)
}

func (s *SafeSegregatedPool) Metrics() SegregatedPoolMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Metrics()
}

func (s *SafeSegregatedPool) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Release()
}

// Generic allocation functions for SafeSegregatedPool

// SafeAlloc thread-safely returns a zeroed *T carved from the pool.
func SafeAlloc[T any](s *SafeSegregatedPool) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Alloc[T](s.p)
}

// SafeAllocSlice thread-safely allocates n elements of T.
func SafeAllocSlice[T any](s *SafeSegregatedPool, n int) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AllocSlice[T](s.p, n)
}

// SafeFree thread-safely returns a value obtained from SafeAlloc.
func SafeFree[T any](s *SafeSegregatedPool, v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	Free(s.p, v)
}

// SafeFreeSlice thread-safely returns a slice obtained from SafeAllocSlice.
func SafeFreeSlice[T any](s *SafeSegregatedPool, v []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	FreeSlice(s.p, v)
}
