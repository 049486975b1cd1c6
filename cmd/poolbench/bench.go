package main

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pavanmanishd/mempool"
)

const verifyCount = 4096

// segregatedSizes is the request mix replayed by the segregated benchmark.
// It covers tiny, arena and large requests for the default block size.
var segregatedSizes = []int{8, 24, 64, 200, 512, 1500, 16, 3000, 96, 40}

type result struct {
	name  string
	pool  time.Duration
	base  time.Duration
	ratio float64
}

// snapshots holds the latest metrics of each benchmark pool so a scrape
// never touches a pool while it is in use.
type snapshots struct {
	mu   sync.Mutex
	slot mempool.SlotPoolMetrics
	seg  mempool.SegregatedPoolMetrics
}

func (s *snapshots) setSlot(m mempool.SlotPoolMetrics) {
	s.mu.Lock()
	s.slot = m
	s.mu.Unlock()
}

func (s *snapshots) setSegregated(m mempool.SegregatedPoolMetrics) {
	s.mu.Lock()
	s.seg = m
	s.mu.Unlock()
}

func (s *snapshots) slotMetrics() mempool.SlotPoolMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

func (s *snapshots) segregatedMetrics() mempool.SegregatedPoolMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seg
}

// runVerify fills verifyCount slots with their index, checks every value and
// hands the slots back.
func runVerify(cfg *config, log *logrus.Entry) error {
	p := mempool.NewSlotPool[uint64](cfg.SlotCapacity,
		mempool.WithCheckMode(cfg.checkMode()),
		mempool.WithLogger(log),
	)
	defer p.Release()

	ptrs := make([]*uint64, verifyCount)
	for i := range ptrs {
		ptrs[i] = p.Allocate()
		*ptrs[i] = uint64(i)
	}
	for i, v := range ptrs {
		if *v != uint64(i) {
			return errors.Errorf("slot %d holds %d", i, *v)
		}
	}
	for i, v := range ptrs {
		if err := p.Deallocate(v); err != nil {
			return errors.Wrapf(err, "deallocate slot %d", i)
		}
	}

	m := p.Metrics()
	if m.InUse != 0 || m.FreeSlots != verifyCount {
		return errors.Errorf("unexpected pool state after verify: %+v", m)
	}
	log.WithFields(logrus.Fields{
		"slots":  verifyCount,
		"blocks": m.Blocks,
	}).Info("verify passed")
	return nil
}

// runSlot times allocating and freeing cfg.Iterations values through a
// SlotPool against new.
func runSlot(cfg *config, log *logrus.Entry, snap *snapshots) (result, error) {
	ptrs := make([]*uint64, cfg.Iterations)
	var poolTotal, baseTotal time.Duration

	for round := 0; round < cfg.Rounds; round++ {
		p := mempool.NewSlotPool[uint64](cfg.SlotCapacity,
			mempool.WithCheckMode(cfg.checkMode()),
			mempool.WithLogger(log),
		)
		start := time.Now()
		for i := range ptrs {
			ptrs[i] = p.Allocate()
		}
		for _, v := range ptrs {
			if err := p.Deallocate(v); err != nil {
				p.Release()
				return result{}, errors.Wrapf(err, "round %d", round)
			}
		}
		elapsed := time.Since(start)
		poolTotal += elapsed
		snap.setSlot(p.Metrics())
		p.Release()

		start = time.Now()
		for i := range ptrs {
			ptrs[i] = new(uint64)
		}
		clear(ptrs)
		baseElapsed := time.Since(start)
		baseTotal += baseElapsed

		log.WithFields(logrus.Fields{
			"round":   round,
			"pool":    perOp(elapsed, cfg.Iterations),
			"builtin": perOp(baseElapsed, cfg.Iterations),
		}).Info("slot pool round")
	}

	return newResult("slot", poolTotal, baseTotal), nil
}

// runSegregated replays segregatedSizes through a SegregatedPool and through
// make.
func runSegregated(cfg *config, log *logrus.Entry, snap *snapshots) (result, error) {
	sys, err := cfg.systemAllocator()
	if err != nil {
		return result{}, err
	}
	tracker := mempool.NewTrackingAllocator(sys)
	bufs := make([][]byte, len(segregatedSizes))
	var poolTotal, baseTotal time.Duration

	for round := 0; round < cfg.Rounds; round++ {
		p := mempool.NewSegregatedPool(cfg.BlockSize,
			mempool.WithSystemAllocator(tracker),
			mempool.WithLogger(log),
		)
		start := time.Now()
		for i := 0; i < cfg.Iterations; i += len(bufs) {
			for j, size := range segregatedSizes {
				b, err := p.AllocBytes(size)
				if err != nil {
					_ = p.Release()
					return result{}, errors.Wrapf(err, "round %d", round)
				}
				b[0] = byte(j)
				bufs[j] = b
			}
			for j := len(bufs) - 1; j >= 0; j-- {
				p.FreeBytes(bufs[j])
			}
		}
		elapsed := time.Since(start)
		poolTotal += elapsed
		snap.setSegregated(p.Metrics())
		if err := p.Release(); err != nil {
			return result{}, errors.Wrapf(err, "release round %d", round)
		}

		start = time.Now()
		for i := 0; i < cfg.Iterations; i += len(bufs) {
			for j, size := range segregatedSizes {
				b := make([]byte, size)
				b[0] = byte(j)
				bufs[j] = b
			}
			clear(bufs)
		}
		baseElapsed := time.Since(start)
		baseTotal += baseElapsed

		log.WithFields(logrus.Fields{
			"round":   round,
			"pool":    perOp(elapsed, cfg.Iterations),
			"builtin": perOp(baseElapsed, cfg.Iterations),
		}).Info("segregated pool round")
	}

	buffers, bytes := tracker.Live()
	if buffers != 0 {
		return result{}, errors.Errorf("%d buffers (%d bytes) not returned to the %s backend", buffers, bytes, cfg.Backend)
	}
	allocs, _ := tracker.Counts()
	log.WithField("systemAllocs", allocs).Debug("backend usage")

	return newResult("segregated", poolTotal, baseTotal), nil
}

func newResult(name string, pool, base time.Duration) result {
	r := result{name: name, pool: pool, base: base}
	if pool > 0 {
		r.ratio = float64(base) / float64(pool)
	}
	return r
}

func perOp(d time.Duration, n int) time.Duration {
	return d / time.Duration(n)
}

func (r result) log(log *logrus.Entry, cfg *config) {
	ops := cfg.Iterations * cfg.Rounds
	log.WithFields(logrus.Fields{
		"benchmark": r.name,
		"pool":      perOp(r.pool, ops),
		"builtin":   perOp(r.base, ops),
		"speedup":   r.ratio,
	}).Info("benchmark finished")
}
