//go:build !unix

package mempool

// MmapAllocator falls back to the Go heap where anonymous mappings are unavailable.
type MmapAllocator struct{}

func (MmapAllocator) Alloc(size int) ([]byte, error) { return HeapAllocator{}.Alloc(size) }

func (MmapAllocator) Free(buf []byte) error { return nil }
