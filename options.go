package mempool

import "github.com/sirupsen/logrus"

// CheckMode selects whether a SlotPool verifies ownership on Deallocate.
type CheckMode uint8

const (
	// Check rejects pointers that do not address a slot of the pool.
	Check CheckMode = iota
	// NoCheck trusts the caller. A foreign pointer handed back is treated as a
	// slot: its free-list link is written just past the pointed-to value, which
	// corrupts neighbouring memory, not only the value itself.
	NoCheck
)

func (m CheckMode) String() string {
	switch m {
	case Check:
		return "check"
	case NoCheck:
		return "nocheck"
	default:
		return "unknown"
	}
}

// ParseCheckMode converts "check" or "nocheck" into a CheckMode.
func ParseCheckMode(s string) (CheckMode, bool) {
	switch s {
	case "check", "Check", "CHECK":
		return Check, true
	case "nocheck", "NoCheck", "NOCHECK":
		return NoCheck, true
	}
	return Check, false
}

type options struct {
	checkMode CheckMode
	log       *logrus.Entry
	sys       SystemAllocator
}

// Option configures a pool at construction time.
type Option func(*options)

// WithCheckMode sets the initial CheckMode of a SlotPool. SegregatedPool ignores it.
func WithCheckMode(m CheckMode) Option {
	return func(o *options) { o.checkMode = m }
}

// WithLogger replaces the entry used for debug logging of growth events.
func WithLogger(e *logrus.Entry) Option {
	return func(o *options) {
		if e != nil {
			o.log = e
		}
	}
}

// WithSystemAllocator sets where a SegregatedPool obtains arena and large buffers.
// SlotPool blocks always come from the Go heap because they may hold pointers.
func WithSystemAllocator(sa SystemAllocator) Option {
	return func(o *options) {
		if sa != nil {
			o.sys = sa
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		checkMode: Check,
		log:       logrus.WithField("component", "mempool"),
		sys:       HeapAllocator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// noCopy makes go vet's copylocks check flag pools copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
