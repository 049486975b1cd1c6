package mempool

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/hashicorp/go-multierror"
)

// wordSize is the granularity of arena spans. Every span starts on a word
// boundary, which is the natural alignment of any pointer-free Go type.
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// noDescriptor terminates descriptor lists.
const noDescriptor int32 = -1

// descriptor describes a free span [off, off+size) of an arena.
type descriptor struct {
	off  int32
	size int32
	next int32
}

// arena is one fixed-capacity byte region managed by a first-fit free list
// with splitting and no coalescing. Descriptors live in their own region,
// indexed rather than pointed to, so they can never alias span data.
type arena struct {
	buf  []byte
	base uintptr

	// descs is bump-allocated up to its reserved capacity.
	descs    []descriptor
	free     int32 // head of free spans
	reusable int32 // head of descriptors no longer describing anything

	cursor int         // first never-touched byte
	live   map[int]int // carved span offset -> size
	inUse  int         // bytes in live spans
}

func newArena(buf []byte) *arena {
	return &arena{
		buf:      buf,
		base:     uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		descs:    make([]descriptor, 0, len(buf)/wordSize+1),
		free:     noDescriptor,
		reusable: noDescriptor,
		live:     make(map[int]int),
	}
}

// get carves size bytes and returns their offset. size must be a positive
// multiple of wordSize. ok is false when no free span and not enough
// untouched tail remain.
func (a *arena) get(size int) (off int, ok bool) {
	prev, larger, largerPrev := noDescriptor, noDescriptor, noDescriptor
	for i := a.free; i != noDescriptor; i = a.descs[i].next {
		d := a.descs[i]
		if int(d.size) == size {
			a.unlink(prev, i)
			a.releaseDescriptor(i)
			return a.carve(int(d.off), size), true
		}
		if int(d.size) > size && larger == noDescriptor {
			larger, largerPrev = i, prev
		}
		prev = i
	}

	if larger != noDescriptor {
		if off, ok := a.split(larger, largerPrev, size); ok {
			return off, true
		}
	}

	if size <= len(a.buf)-a.cursor {
		off := a.cursor
		a.cursor += size
		return a.carve(off, size), true
	}
	return 0, false
}

// split carves the leading size bytes of descriptor i. The remainder gets a
// fresh descriptor at the head of the free list.
func (a *arena) split(i, prev int32, size int) (int, bool) {
	d := a.descs[i]
	rem, ok := a.acquireDescriptor()
	if !ok {
		return 0, false
	}
	a.unlink(prev, i)
	a.descs[rem] = descriptor{
		off:  d.off + int32(size),
		size: d.size - int32(size),
		next: a.free,
	}
	a.free = rem
	a.releaseDescriptor(i)
	return a.carve(int(d.off), size), true
}

func (a *arena) carve(off, size int) int {
	a.live[off] = size
	a.inUse += size
	return off
}

// put returns the span carved at off to the free list. It reports false if
// off is not the start of a live span.
func (a *arena) put(off int) bool {
	size, ok := a.live[off]
	if !ok {
		return false
	}
	i, ok := a.acquireDescriptor()
	if !ok {
		// Unreachable: free spans never outnumber the reserved descriptors.
		panic("mempool: arena descriptor region exhausted")
	}
	delete(a.live, off)
	a.inUse -= size
	a.descs[i] = descriptor{off: int32(off), size: int32(size), next: a.free}
	a.free = i
	return true
}

func (a *arena) unlink(prev, i int32) {
	if prev == noDescriptor {
		a.free = a.descs[i].next
	} else {
		a.descs[prev].next = a.descs[i].next
	}
	a.descs[i].next = noDescriptor
}

func (a *arena) acquireDescriptor() (int32, bool) {
	if i := a.reusable; i != noDescriptor {
		a.reusable = a.descs[i].next
		a.descs[i].next = noDescriptor
		return i, true
	}
	if len(a.descs) == cap(a.descs) {
		return noDescriptor, false
	}
	a.descs = append(a.descs, descriptor{next: noDescriptor})
	return int32(len(a.descs) - 1), true
}

func (a *arena) releaseDescriptor(i int32) {
	a.descs[i] = descriptor{next: a.reusable}
	a.reusable = i
}

// offsetOf maps an address inside the arena to its byte offset.
func (a *arena) offsetOf(ptr unsafe.Pointer) (int, bool) {
	addr := uintptr(ptr)
	if addr < a.base || addr >= a.base+uintptr(len(a.buf)) {
		return 0, false
	}
	return int(addr - a.base), true
}

func (a *arena) bytes(off, size int) []byte {
	return a.buf[off : off+size : off+size]
}

// reset makes the whole arena untouched again.
func (a *arena) reset() {
	a.descs = a.descs[:0]
	a.free = noDescriptor
	a.reusable = noDescriptor
	a.cursor = 0
	a.inUse = 0
	clear(a.live)
}

func (a *arena) capacity() int { return len(a.buf) }

// freeSpans returns the number and total size of spans on the free list.
func (a *arena) freeSpans() (count, bytes int) {
	for i := a.free; i != noDescriptor && count <= len(a.descs); i = a.descs[i].next {
		count++
		bytes += int(a.descs[i].size)
	}
	return count, bytes
}

type span struct {
	off, size int
	kind      string
}

// verify checks that free spans, live spans and the untouched tail partition
// the arena with no gaps and no overlaps.
func (a *arena) verify() error {
	var result *multierror.Error

	spans := make([]span, 0, len(a.live)+len(a.descs)+1)
	seen := 0
	for i := a.free; i != noDescriptor; i = a.descs[i].next {
		if seen > len(a.descs) {
			result = multierror.Append(result, fmt.Errorf("free list cycles"))
			break
		}
		seen++
		d := a.descs[i]
		spans = append(spans, span{off: int(d.off), size: int(d.size), kind: "free"})
	}
	for off, size := range a.live {
		spans = append(spans, span{off: off, size: size, kind: "live"})
	}
	if a.cursor < len(a.buf) {
		spans = append(spans, span{off: a.cursor, size: len(a.buf) - a.cursor, kind: "tail"})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].off < spans[j].off })

	next := 0
	for _, s := range spans {
		if s.size <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s span at %d has size %d", s.kind, s.off, s.size))
		}
		switch {
		case s.off < next:
			result = multierror.Append(result, fmt.Errorf("%s span at %d overlaps previous span ending at %d", s.kind, s.off, next))
		case s.off > next:
			result = multierror.Append(result, fmt.Errorf("gap [%d, %d) before %s span", next, s.off, s.kind))
		}
		if s.kind != "tail" && s.off+s.size > a.cursor {
			result = multierror.Append(result, fmt.Errorf("%s span at %d extends past cursor %d", s.kind, s.off, a.cursor))
		}
		if end := s.off + s.size; end > next {
			next = end
		}
	}
	if next != len(a.buf) {
		result = multierror.Append(result, fmt.Errorf("spans cover %d of %d bytes", next, len(a.buf)))
	}
	return result.ErrorOrNil()
}
