package mempool

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultInitialCapacity is the number of slots in a SlotPool's first block.
const DefaultInitialCapacity = 2048

// SlotPool is a fixed-size pool for values of a single type T. Slots are
// bump-allocated from a chain of blocks that double in size, and recycled
// through a LIFO free list. Not goroutine-safe; use SafeSlotPool or one pool
// per goroutine for concurrent access.
type SlotPool[T any] struct {
	noCopy noCopy

	head            *block[T] // newest block, the only one bumped from
	free            *slot[T]  // most recently freed slot
	initialCapacity int
	checkMode       CheckMode
	released        bool

	blocks    int
	capacity  int
	inUse     int
	freeSlots int

	log *logrus.Entry
}

// NewSlotPool creates a SlotPool whose first block holds initialCapacity slots.
// If initialCapacity <= 0, DefaultInitialCapacity is used. No memory is
// requested until the first allocation.
func NewSlotPool[T any](initialCapacity int, opts ...Option) *SlotPool[T] {
	if initialCapacity <= 0 {
		initialCapacity = DefaultInitialCapacity
	}
	o := buildOptions(opts)
	return &SlotPool[T]{
		initialCapacity: initialCapacity,
		checkMode:       o.checkMode,
		log:             o.log,
	}
}

// Allocate returns a zeroed slot.
func (p *SlotPool[T]) Allocate() *T {
	s := p.take()
	var zero T
	s.value = zero
	return &s.value
}

// AllocateUninitialized returns a slot without clearing it. A recycled slot
// still holds the value it had when it was deallocated.
func (p *SlotPool[T]) AllocateUninitialized() *T {
	return &p.take().value
}

// Deallocate returns ptr to the pool. The slot becomes the next one handed out.
// Double frees and use after free are not detected. In NoCheck mode ptr must
// come from this pool: any other address is treated as a slot, and the
// free-list link is written just past the T it points to, overwriting
// whatever memory follows it. Deallocate panics after Release.
func (p *SlotPool[T]) Deallocate(ptr *T) error {
	if err := p.validate(ptr); err != nil {
		return err
	}
	p.recycle(ptr)
	return nil
}

// SetCheckMode switches ownership checking on or off.
func (p *SlotPool[T]) SetCheckMode(m CheckMode) {
	p.checkMode = m
}

// CheckMode returns the current ownership checking mode.
func (p *SlotPool[T]) CheckMode() CheckMode {
	return p.checkMode
}

// Reset forgets every allocation. The newest block is kept and bumped from
// again; older blocks are dropped. All outstanding pointers become invalid.
func (p *SlotPool[T]) Reset() {
	p.panicIfReleased()
	p.free = nil
	p.inUse = 0
	p.freeSlots = 0
	if p.head == nil {
		return
	}
	p.head.next = nil
	p.head.used = 0
	p.blocks = 1
	p.capacity = p.head.capacity()
}

// Release drops every block and makes the pool unusable. Outstanding
// pointers dangle. Calling Release more than once is harmless.
func (p *SlotPool[T]) Release() {
	for b := p.head; b != nil; {
		next := b.next
		b.slots = nil
		b.next = nil
		b = next
	}
	p.head = nil
	p.free = nil
	p.blocks, p.capacity, p.inUse, p.freeSlots = 0, 0, 0, 0
	p.released = true
}

// Move transfers every block, the free list and the configuration to a new
// pool. p is left empty and usable; pointers obtained from p now belong to
// the returned pool.
func (p *SlotPool[T]) Move() *SlotPool[T] {
	p.panicIfReleased()
	q := &SlotPool[T]{
		head:            p.head,
		free:            p.free,
		initialCapacity: p.initialCapacity,
		checkMode:       p.checkMode,
		blocks:          p.blocks,
		capacity:        p.capacity,
		inUse:           p.inUse,
		freeSlots:       p.freeSlots,
		log:             p.log,
	}
	p.head = nil
	p.free = nil
	p.blocks, p.capacity, p.inUse, p.freeSlots = 0, 0, 0, 0
	return q
}

// take pops the free list, bumps the head block, or grows.
func (p *SlotPool[T]) take() *slot[T] {
	if s := p.free; s != nil {
		p.free = s.next
		s.next = nil
		p.freeSlots--
		p.inUse++
		return s
	}
	if p.head != nil {
		if s := p.head.bump(); s != nil {
			p.inUse++
			return s
		}
	}
	p.panicIfReleased()
	p.grow()
	p.inUse++
	return p.head.bump()
}

// grow links a new head block twice the size of the previous one.
func (p *SlotPool[T]) grow() {
	capacity := p.initialCapacity
	if p.head != nil {
		capacity = 2 * p.head.capacity()
	}
	p.head = newBlock(capacity, p.head)
	p.blocks++
	p.capacity += capacity

	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		p.log.WithFields(logrus.Fields{
			"blocks":   p.blocks,
			"capacity": capacity,
			"slotSize": unsafe.Sizeof(slot[T]{}),
		}).Debug("slot pool grew")
	}
}

func (p *SlotPool[T]) validate(ptr *T) error {
	p.panicIfReleased()
	if ptr == nil {
		return ErrNullPointer
	}
	if p.checkMode == Check && !p.owns(ptr) {
		return errors.Wrapf(ErrInvalidPointer, "%p", ptr)
	}
	return nil
}

// owns scans the block chain, newest first.
func (p *SlotPool[T]) owns(ptr *T) bool {
	addr := uintptr(unsafe.Pointer(ptr))
	for b := p.head; b != nil; b = b.next {
		if b.contains(addr) {
			return true
		}
	}
	return false
}

func (p *SlotPool[T]) recycle(ptr *T) {
	s := (*slot[T])(unsafe.Pointer(ptr))
	s.next = p.free
	p.free = s
	p.freeSlots++
	p.inUse--
}

func (p *SlotPool[T]) panicIfReleased() {
	if p.released {
		panic("mempool: use after Release()")
	}
}
