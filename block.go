package mempool

import "unsafe"

// slot holds either a live value or, while on the free list, a link to the
// next free slot. value must stay the first field: pointers handed out by the
// pool address it and are converted back to *slot on Deallocate.
type slot[T any] struct {
	value T
	next  *slot[T]
}

// block is one contiguous run of slots. Blocks are linked newest first and
// are only bumped from while they are the head of the chain.
type block[T any] struct {
	slots []slot[T]
	used  int

	// [start, end) address range of slots, used for ownership checks.
	start uintptr
	end   uintptr

	next *block[T]
}

func newBlock[T any](capacity int, next *block[T]) *block[T] {
	slots := make([]slot[T], capacity)
	start := uintptr(unsafe.Pointer(unsafe.SliceData(slots)))
	return &block[T]{
		slots: slots,
		start: start,
		end:   start + uintptr(capacity)*unsafe.Sizeof(slot[T]{}),
		next:  next,
	}
}

// bump hands out the next untouched slot, or nil when the block is exhausted.
func (b *block[T]) bump() *slot[T] {
	if b.used == len(b.slots) {
		return nil
	}
	s := &b.slots[b.used]
	b.used++
	return s
}

// contains reports whether addr is the address of one of the block's slots.
func (b *block[T]) contains(addr uintptr) bool {
	if addr < b.start || addr >= b.end {
		return false
	}
	return (addr-b.start)%unsafe.Sizeof(slot[T]{}) == 0
}

func (b *block[T]) capacity() int { return len(b.slots) }
