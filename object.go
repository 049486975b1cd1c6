package mempool

// Lifecycle is implemented by *T for element types that must be constructed
// in place when a slot is handed out and destroyed when it comes back.
// A is the type of the construction arguments; use struct{} when none are needed.
type Lifecycle[T any, A any] interface {
	*T
	Construct(args A)
	Destroy()
}

// ObjectPool is a SlotPool for element types with a Lifecycle. The
// construction and destruction hooks are bound at compile time through PT;
// trivial element types should use SlotPool directly.
type ObjectPool[T any, A any, PT Lifecycle[T, A]] struct {
	slots *SlotPool[T]
}

// NewObjectPool creates an ObjectPool. PT is inferred from T:
//
//	pool := mempool.NewObjectPool[conn, connArgs](0)
func NewObjectPool[T any, A any, PT Lifecycle[T, A]](initialCapacity int, opts ...Option) *ObjectPool[T, A, PT] {
	return &ObjectPool[T, A, PT]{slots: NewSlotPool[T](initialCapacity, opts...)}
}

// Allocate takes a zeroed slot and constructs a T in it with args.
func (p *ObjectPool[T, A, PT]) Allocate(args A) *T {
	v := p.slots.Allocate()
	PT(v).Construct(args)
	return v
}

// Deallocate validates ptr, destroys the value and recycles the slot.
// Nothing is destroyed when validation fails. It panics after Release.
func (p *ObjectPool[T, A, PT]) Deallocate(ptr *T) error {
	if err := p.slots.validate(ptr); err != nil {
		return err
	}
	PT(ptr).Destroy()
	p.slots.recycle(ptr)
	return nil
}

func (p *ObjectPool[T, A, PT]) SetCheckMode(m CheckMode) { p.slots.SetCheckMode(m) }

func (p *ObjectPool[T, A, PT]) CheckMode() CheckMode { return p.slots.CheckMode() }

// Metrics returns a snapshot of the underlying slot pool.
func (p *ObjectPool[T, A, PT]) Metrics() SlotPoolMetrics { return p.slots.Metrics() }

// Release drops all memory without destroying outstanding values.
func (p *ObjectPool[T, A, PT]) Release() { p.slots.Release() }

// Move transfers ownership of every slot to a new pool and leaves p empty.
func (p *ObjectPool[T, A, PT]) Move() *ObjectPool[T, A, PT] {
	return &ObjectPool[T, A, PT]{slots: p.slots.Move()}
}
