// Package metrics exports pool statistics as Prometheus gauges.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pavanmanishd/mempool"
)

// SlotSource returns a SlotPool snapshot. It is called from the scrape
// goroutine, so it must be safe to call concurrently with pool users, e.g.
// SafeSlotPool.Metrics.
type SlotSource func() mempool.SlotPoolMetrics

// SegregatedSource returns a SegregatedPool snapshot under the same rules as
// SlotSource.
type SegregatedSource func() mempool.SegregatedPoolMetrics

// Collector is a prometheus.Collector over a set of named pools.
type Collector struct {
	mu         sync.Mutex
	slot       map[string]SlotSource
	segregated map[string]SegregatedSource

	slotBlocks    *prometheus.Desc
	slotCapacity  *prometheus.Desc
	slotInUse     *prometheus.Desc
	slotFree      *prometheus.Desc
	slotSize      *prometheus.Desc
	segArenas     *prometheus.Desc
	segCapacity   *prometheus.Desc
	segInUse      *prometheus.Desc
	segFreeSpans  *prometheus.Desc
	segFreeBytes  *prometheus.Desc
	segUntouched  *prometheus.Desc
	segLarge      *prometheus.Desc
	segLargeBytes *prometheus.Desc
	segFrag       *prometheus.Desc
}

// NewCollector creates an empty Collector. Metric names are prefixed with
// namespace.
func NewCollector(namespace string) *Collector {
	pool := []string{"pool"}
	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, pool, nil)
	}
	return &Collector{
		slot:       make(map[string]SlotSource),
		segregated: make(map[string]SegregatedSource),

		slotBlocks:   desc("slot_pool", "blocks", "Number of blocks owned by the slot pool"),
		slotCapacity: desc("slot_pool", "capacity_slots", "Total slots across all blocks"),
		slotInUse:    desc("slot_pool", "in_use_slots", "Slots handed out and not yet returned"),
		slotFree:     desc("slot_pool", "free_slots", "Slots on the free list"),
		slotSize:     desc("slot_pool", "slot_size_bytes", "Size of one slot"),

		segArenas:     desc("segregated_pool", "arenas", "Number of arenas"),
		segCapacity:   desc("segregated_pool", "arena_capacity_bytes", "Total arena capacity"),
		segInUse:      desc("segregated_pool", "arena_in_use_bytes", "Bytes held by live arena allocations"),
		segFreeSpans:  desc("segregated_pool", "free_spans", "Spans on arena free lists"),
		segFreeBytes:  desc("segregated_pool", "free_span_bytes", "Bytes on arena free lists"),
		segUntouched:  desc("segregated_pool", "untouched_bytes", "Arena bytes never handed out"),
		segLarge:      desc("segregated_pool", "large_allocations", "Live allocations above half the block size"),
		segLargeBytes: desc("segregated_pool", "large_bytes", "Bytes held by large allocations"),
		segFrag:       desc("segregated_pool", "fragmentation_ratio", "Share of free arena bytes held in free-list spans"),
	}
}

// AddSlotPool registers a slot pool under name, replacing any previous source
// with that name.
func (c *Collector) AddSlotPool(name string, src SlotSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot[name] = src
}

// AddSegregatedPool registers a segregated pool under name.
func (c *Collector) AddSegregatedPool(name string, src SegregatedSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segregated[name] = src
}

// Remove drops every source registered under name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slot, name)
	delete(c.segregated, name)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.slotBlocks, c.slotCapacity, c.slotInUse, c.slotFree, c.slotSize,
		c.segArenas, c.segCapacity, c.segInUse, c.segFreeSpans, c.segFreeBytes,
		c.segUntouched, c.segLarge, c.segLargeBytes, c.segFrag,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gauge := func(d *prometheus.Desc, v float64, name string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, name)
	}

	for _, name := range sortedKeys(c.slot) {
		m := c.slot[name]()
		gauge(c.slotBlocks, float64(m.Blocks), name)
		gauge(c.slotCapacity, float64(m.Capacity), name)
		gauge(c.slotInUse, float64(m.InUse), name)
		gauge(c.slotFree, float64(m.FreeSlots), name)
		gauge(c.slotSize, float64(m.SlotSize), name)
	}
	for _, name := range sortedKeys(c.segregated) {
		m := c.segregated[name]()
		gauge(c.segArenas, float64(m.Arenas), name)
		gauge(c.segCapacity, float64(m.ArenaCapacity), name)
		gauge(c.segInUse, float64(m.ArenaInUse), name)
		gauge(c.segFreeSpans, float64(m.FreeSpans), name)
		gauge(c.segFreeBytes, float64(m.FreeSpanBytes), name)
		gauge(c.segUntouched, float64(m.Untouched), name)
		gauge(c.segLarge, float64(m.LargeAllocations), name)
		gauge(c.segLargeBytes, float64(m.LargeBytes), name)
		gauge(c.segFrag, m.Fragmentation(), name)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ prometheus.Collector = (*Collector)(nil)
