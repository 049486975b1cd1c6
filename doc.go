// Package mempool implements two user-space memory pools for workloads that
// repeatedly acquire and release many objects.
//
// # Overview
//
// SlotPool serves values of one fixed type. Slots are bump-allocated from a
// chain of blocks, each twice the size of the one before, and freed slots
// are recycled through a LIFO free list:
//
//	pool := mempool.NewSlotPool[node](0) // 2048 slots in the first block
//	defer pool.Release()
//
//	n := pool.Allocate()
//	n.key = 42
//	if err := pool.Deallocate(n); err != nil {
//		return err
//	}
//
// SegregatedPool serves requests of any size and pointer-free type. Small
// requests are carved from fixed-size arenas by a first-fit free list with
// splitting; requests larger than half the block size bypass the arenas and
// go straight to the system allocator:
//
//	pool := mempool.NewSegregatedPool(0) // 4096 byte arenas
//	defer pool.Release()
//
//	hdr, err := mempool.Alloc[header](pool)
//	buf, err := mempool.AllocSlice[uint64](pool, 64)
//	mempool.FreeSlice(pool, buf)
//	mempool.Free(pool, hdr)
//
// # Construction and Destruction
//
// Element types that need in-place construction use ObjectPool, whose
// Lifecycle constraint binds Construct and Destroy at compile time:
//
//	type conn struct{ fd int }
//	func (c *conn) Construct(fd int) { c.fd = fd }
//	func (c *conn) Destroy()         { c.fd = -1 }
//
//	pool := mempool.NewObjectPool[conn, int](0)
//	c := pool.Allocate(3)
//
// # Ownership
//
// A pool exclusively owns every block, arena and large buffer it allocates.
// Returned pointers are on loan until handed back; Release frees everything
// regardless of outstanding loans. Move hands ownership to a new pool and
// leaves the source empty. Pools must not be copied.
//
// In Check mode (the default) SlotPool.Deallocate rejects pointers that do
// not address one of its slots. Double frees are never detected.
// SegregatedPool.Deallocate silently ignores pointers it does not recognize.
//
// # Thread Safety
//
// Pools are not goroutine-safe. SafeSlotPool and SafeSegregatedPool wrap a
// pool with a mutex for callers that must share one.
//
// # Known Limitations
//
//   - Adjacent free arena spans are never merged; mixed-size churn fragments arenas.
//   - Blocks and arenas are only released with the whole pool.
//   - SegregatedPool element types must not contain Go pointers.
package mempool
