package mempool

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultBlockSize is the default capacity in bytes of every arena.
const DefaultBlockSize = 4096

// MaxBlockSize is the largest arena capacity. Arena offsets are stored as
// int32.
const MaxBlockSize = math.MaxInt32 &^ (wordSize - 1)

type entryKind uint8

const (
	kindArena entryKind = iota + 1
	kindLarge
)

func (k entryKind) String() string {
	switch k {
	case kindArena:
		return "arena"
	case kindLarge:
		return "large"
	default:
		return "unknown"
	}
}

// chainEntry is either an arena serving small requests or one large
// allocation obtained directly from the system allocator.
type chainEntry struct {
	kind  entryKind
	arena *arena
	large []byte
	next  *chainEntry
}

// SegregatedPool serves variable-size requests. Requests larger than half
// the block size go straight to the system allocator; the rest are carved
// from fixed-size arenas searched in creation order. Freed arena spans are
// reused but never merged with their neighbours.
//
// Element types must not contain Go pointers. Not goroutine-safe.
type SegregatedPool struct {
	noCopy noCopy

	blockSize int
	head      *chainEntry
	tail      *chainEntry
	sys       SystemAllocator
	released  bool

	log *logrus.Entry
}

// NewSegregatedPool creates a pool whose arenas hold blockSize bytes each.
// If blockSize <= 0, DefaultBlockSize is used; values above MaxBlockSize are
// clamped to it. The result is rounded up to a multiple of the word size.
func NewSegregatedPool(blockSize int, opts ...Option) *SegregatedPool {
	switch {
	case blockSize <= 0:
		blockSize = DefaultBlockSize
	case blockSize > MaxBlockSize:
		blockSize = MaxBlockSize
	}
	blockSize = alignUp(blockSize)
	o := buildOptions(opts)
	return &SegregatedPool{
		blockSize: blockSize,
		sys:       o.sys,
		log:       o.log,
	}
}

// BlockSize returns the capacity of each arena.
func (p *SegregatedPool) BlockSize() int { return p.blockSize }

// AllocBytes returns n bytes of pool memory. Recycled arena spans are not cleared.
func (p *SegregatedPool) AllocBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "%d bytes", n)
	}
	ptr, err := p.allocate(n)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

// FreeBytes returns a buffer obtained from AllocBytes.
func (p *SegregatedPool) FreeBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	p.Deallocate(unsafe.Pointer(unsafe.SliceData(b)))
}

// allocate classifies the request and returns the start of a span of at
// least size bytes.
func (p *SegregatedPool) allocate(size int) (unsafe.Pointer, error) {
	p.panicIfReleased()
	if size > p.blockSize/2 {
		return p.allocateLarge(size)
	}

	need := alignUp(size)
	for e := p.head; e != nil; e = e.next {
		if e.kind != kindArena {
			continue
		}
		if off, ok := e.arena.get(need); ok {
			return unsafe.Pointer(&e.arena.buf[off]), nil
		}
	}

	a, err := p.appendArena()
	if err != nil {
		return nil, err
	}
	off, ok := a.get(need)
	if !ok {
		panic(fmt.Sprintf("mempool: fresh %d byte arena rejected %d byte request", p.blockSize, need))
	}
	return unsafe.Pointer(&a.buf[off]), nil
}

func (p *SegregatedPool) allocateLarge(size int) (unsafe.Pointer, error) {
	buf, err := p.sys.Alloc(size)
	if err != nil {
		return nil, errors.Wrapf(err, "large allocation of %d bytes", size)
	}
	p.append(&chainEntry{kind: kindLarge, large: buf})
	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		p.log.WithField("size", size).Debug("large allocation")
	}
	return unsafe.Pointer(unsafe.SliceData(buf)), nil
}

func (p *SegregatedPool) appendArena() (*arena, error) {
	buf, err := p.sys.Alloc(p.blockSize)
	if err != nil {
		return nil, errors.Wrapf(err, "arena of %d bytes", p.blockSize)
	}
	a := newArena(buf)
	p.append(&chainEntry{kind: kindArena, arena: a})
	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		p.log.WithFields(logrus.Fields{
			"blockSize": p.blockSize,
			"arenas":    p.countArenas(),
		}).Debug("arena created")
	}
	return a, nil
}

func (p *SegregatedPool) append(e *chainEntry) {
	if p.tail == nil {
		p.head = e
	} else {
		p.tail.next = e
	}
	p.tail = e
}

// Deallocate returns memory obtained from the pool. Pointers the pool does
// not recognize, including nil and already freed spans, are ignored.
func (p *SegregatedPool) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil || p.released {
		return
	}
	var prev *chainEntry
	for e := p.head; e != nil; prev, e = e, e.next {
		switch e.kind {
		case kindArena:
			if off, ok := e.arena.offsetOf(ptr); ok {
				if !e.arena.put(off) {
					p.logUnrecognized(ptr)
				}
				return
			}
		case kindLarge:
			if unsafe.Pointer(unsafe.SliceData(e.large)) == ptr {
				p.unlink(prev, e)
				if err := p.sys.Free(e.large); err != nil {
					p.log.WithError(err).WithField("size", len(e.large)).Warn("release of large allocation failed")
				}
				e.large = nil
				return
			}
		}
	}
	p.logUnrecognized(ptr)
}

func (p *SegregatedPool) unlink(prev, e *chainEntry) {
	if prev == nil {
		p.head = e.next
	} else {
		prev.next = e.next
	}
	if p.tail == e {
		p.tail = prev
	}
	e.next = nil
}

func (p *SegregatedPool) logUnrecognized(ptr unsafe.Pointer) {
	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		p.log.WithField("pointer", fmt.Sprintf("%p", ptr)).Debug("ignoring unrecognized pointer")
	}
}

// Reset makes every arena untouched again and releases all large
// allocations. All outstanding pointers become invalid.
func (p *SegregatedPool) Reset() error {
	p.panicIfReleased()
	var result *multierror.Error
	var prev *chainEntry
	for e := p.head; e != nil; {
		next := e.next
		switch e.kind {
		case kindArena:
			e.arena.reset()
			prev = e
		case kindLarge:
			p.unlink(prev, e)
			if err := p.sys.Free(e.large); err != nil {
				result = multierror.Append(result, err)
			}
			e.large = nil
		}
		e = next
	}
	return result.ErrorOrNil()
}

// Release returns every arena and large allocation to the system allocator
// and makes the pool unusable. Outstanding pointers dangle. Calling Release
// more than once is harmless.
func (p *SegregatedPool) Release() error {
	var result *multierror.Error
	for e := p.head; e != nil; {
		next := e.next
		var buf []byte
		switch e.kind {
		case kindArena:
			buf = e.arena.buf
			e.arena = nil
		case kindLarge:
			buf = e.large
			e.large = nil
		}
		if err := p.sys.Free(buf); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "release %s of %d bytes", e.kind, len(buf)))
		}
		e.next = nil
		e = next
	}
	p.head, p.tail = nil, nil
	p.released = true
	return result.ErrorOrNil()
}

// Move transfers every arena and large allocation to a new pool. p is left
// empty and usable.
func (p *SegregatedPool) Move() *SegregatedPool {
	p.panicIfReleased()
	q := &SegregatedPool{
		blockSize: p.blockSize,
		head:      p.head,
		tail:      p.tail,
		sys:       p.sys,
		log:       p.log,
	}
	p.head, p.tail = nil, nil
	return q
}

// Verify checks every arena's span bookkeeping and reports all violations.
func (p *SegregatedPool) Verify() error {
	var result *multierror.Error
	i := 0
	for e := p.head; e != nil; e = e.next {
		if e.kind != kindArena {
			continue
		}
		if err := e.arena.verify(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "arena %d", i))
		}
		i++
	}
	return result.ErrorOrNil()
}

func (p *SegregatedPool) countArenas() int {
	n := 0
	for e := p.head; e != nil; e = e.next {
		if e.kind == kindArena {
			n++
		}
	}
	return n
}

func (p *SegregatedPool) panicIfReleased() {
	if p.released {
		panic("mempool: use after Release()")
	}
}

// alignUp rounds n up to a multiple of the word size.
func alignUp(n int) int {
	return (n + wordSize - 1) &^ (wordSize - 1)
}
