package mempool

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNullPointer is returned when a nil pointer is handed back to a SlotPool.
	ErrNullPointer = errors.New("mempool: nil pointer")

	// ErrInvalidPointer is returned in Check mode when a pointer does not address
	// a slot of any block owned by the pool.
	ErrInvalidPointer = errors.New("mempool: pointer not owned by pool")

	// ErrAllocationFailure indicates the system allocator could not provide memory.
	ErrAllocationFailure = errors.New("mempool: system allocation failed")

	// ErrPointerType indicates an element type that holds Go pointers was requested
	// from raw byte storage the garbage collector does not scan.
	ErrPointerType = errors.New("mempool: element type contains pointers")

	// ErrInvalidLength indicates a non-positive or overflowing element count.
	ErrInvalidLength = errors.New("mempool: invalid length")
)

// AllocationError reports a failed request to a SystemAllocator.
type AllocationError struct {
	Size int
	Err  error
}

func (e *AllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mempool: allocate %d bytes failed", e.Size)
	}
	return fmt.Sprintf("mempool: allocate %d bytes: %v", e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Is reports every AllocationError as ErrAllocationFailure.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailure
}
