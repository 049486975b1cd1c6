//go:build unix

package mempool

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous private memory for every buffer. Pages come
// back zeroed and are returned to the kernel on Free.
type MmapAllocator struct{}

func (MmapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, &AllocationError{Size: size, Err: unix.EINVAL}
	}
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, &AllocationError{Size: size, Err: err}
	}
	return buf, nil
}

func (MmapAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	err := unix.Munmap(buf)
	if errors.Is(err, unix.EINVAL) {
		// already unmapped
		return nil
	}
	return err
}
