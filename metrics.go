package mempool

import "unsafe"

// SlotPoolMetrics contains statistical information about a SlotPool.
type SlotPoolMetrics struct {
	Blocks      int     // Blocks in the chain
	Capacity    int     // Slots across all blocks
	InUse       int     // Slots handed out and not yet deallocated
	FreeSlots   int     // Slots waiting on the free list
	SlotSize    int     // Bytes per slot, including the free-list link
	Utilization float64 // InUse / Capacity (0.0-1.0)
}

// Metrics returns a snapshot of pool statistics.
func (p *SlotPool[T]) Metrics() SlotPoolMetrics {
	m := SlotPoolMetrics{
		Blocks:    p.blocks,
		Capacity:  p.capacity,
		InUse:     p.inUse,
		FreeSlots: p.freeSlots,
		SlotSize:  int(unsafe.Sizeof(slot[T]{})),
	}
	if m.Capacity > 0 {
		m.Utilization = float64(m.InUse) / float64(m.Capacity)
	}
	return m
}

// SegregatedPoolMetrics contains statistical information about a SegregatedPool.
type SegregatedPoolMetrics struct {
	BlockSize        int     // Capacity of each arena
	Arenas           int     // Arenas in the chain
	ArenaCapacity    int     // Bytes across all arenas
	ArenaInUse       int     // Bytes in live arena spans
	FreeSpans        int     // Spans on arena free lists
	FreeSpanBytes    int     // Bytes on arena free lists
	Untouched        int     // Bytes never carved from arena tails
	LargeAllocations int     // Outstanding large allocations
	LargeBytes       int     // Bytes in outstanding large allocations
	Utilization      float64 // ArenaInUse / ArenaCapacity (0.0-1.0)
}

// Fragmentation returns the share of free arena bytes that sit on free lists
// rather than in untouched tails. Freed spans are never merged, so this only
// grows under mixed-size churn.
func (m SegregatedPoolMetrics) Fragmentation() float64 {
	free := m.FreeSpanBytes + m.Untouched
	if free == 0 {
		return 0
	}
	return float64(m.FreeSpanBytes) / float64(free)
}

// Metrics returns a snapshot of pool statistics. It walks the whole chain.
func (p *SegregatedPool) Metrics() SegregatedPoolMetrics {
	m := SegregatedPoolMetrics{BlockSize: p.blockSize}
	for e := p.head; e != nil; e = e.next {
		switch e.kind {
		case kindArena:
			a := e.arena
			m.Arenas++
			m.ArenaCapacity += a.capacity()
			m.ArenaInUse += a.inUse
			m.Untouched += a.capacity() - a.cursor
			n, b := a.freeSpans()
			m.FreeSpans += n
			m.FreeSpanBytes += b
		case kindLarge:
			m.LargeAllocations++
			m.LargeBytes += len(e.large)
		}
	}
	if m.ArenaCapacity > 0 {
		m.Utilization = float64(m.ArenaInUse) / float64(m.ArenaCapacity)
	}
	return m
}
