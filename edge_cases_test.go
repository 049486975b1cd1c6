package mempool_test

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/mempool"
)

// TestEdgeCases covers construction arguments and use after Release
func TestEdgeCases(t *testing.T) {
	t.Run("ZeroAndNegativeBlockSizes", func(t *testing.T) {
		for _, size := range []int{0, -1, -1000} {
			p := mempool.NewSegregatedPool(size)
			assert.Equal(t, mempool.DefaultBlockSize, p.BlockSize(), "NewSegregatedPool(%d)", size)
			require.NoError(t, p.Release())
		}
	})

	t.Run("LargeAllocations", func(t *testing.T) {
		p := mempool.NewSegregatedPool(1024)
		defer p.Release()

		large, err := p.AllocBytes(2048)
		require.NoError(t, err)
		assert.Len(t, large, 2048)

		veryLarge, err := p.AllocBytes(1 << 20)
		require.NoError(t, err)
		assert.Len(t, veryLarge, 1<<20)
		assert.Equal(t, 2, p.Metrics().LargeAllocations)
	})

	t.Run("UseAfterRelease", func(t *testing.T) {
		sp := mempool.NewSlotPool[int](8)
		sp.Allocate()
		sp.Release()
		assert.Panics(t, func() { sp.Allocate() }, "SlotPool.Allocate")
		assert.Panics(t, func() { sp.Reset() }, "SlotPool.Reset")
		assert.Panics(t, func() { sp.Move() }, "SlotPool.Move")

		p := mempool.NewSegregatedPool(1024)
		require.NoError(t, p.Release())
		assert.Panics(t, func() { _, _ = p.AllocBytes(100) }, "AllocBytes")
		assert.Panics(t, func() { _ = p.Reset() }, "Reset")
		assert.Panics(t, func() { _, _ = mempool.Alloc[int](p) }, "Alloc")
		assert.Panics(t, func() { _, _ = mempool.AllocSlice[int](p, 10) }, "AllocSlice")
		assert.NotPanics(t, func() { mempool.Free(p, new(int)) }, "Free")
	})

	t.Run("MultipleReleases", func(t *testing.T) {
		sp := mempool.NewSlotPool[int](8)
		sp.Release()
		sp.Release()

		p := mempool.NewSegregatedPool(1024)
		require.NoError(t, p.Release())
		require.NoError(t, p.Release())
	})

	t.Run("EmptySliceAllocations", func(t *testing.T) {
		p := mempool.NewSegregatedPool(1024)
		defer p.Release()

		for _, n := range []int{0, -1} {
			s, err := mempool.AllocSlice[int](p, n)
			require.ErrorIs(t, err, mempool.ErrInvalidLength)
			assert.Nil(t, s)
			s, err = mempool.AllocSliceZeroed[int](p, n)
			require.ErrorIs(t, err, mempool.ErrInvalidLength)
			assert.Nil(t, s)
		}
	})
}

// TestMemoryCorruption checks that live spans never overlap
func TestMemoryCorruption(t *testing.T) {
	p := mempool.NewSegregatedPool(1024)
	defer p.Release()

	ptrs := make([]*[64]byte, 100)
	for i := range ptrs {
		v, err := mempool.Alloc[[64]byte](p)
		require.NoError(t, err)
		ptrs[i] = v
		for j := range v {
			v[j] = byte(i)
		}
	}
	// free every third value and refill the holes
	for i := 0; i < len(ptrs); i += 3 {
		mempool.Free(p, ptrs[i])
		v, err := mempool.Alloc[[64]byte](p)
		require.NoError(t, err)
		ptrs[i] = v
		for j := range v {
			v[j] = byte(i)
		}
	}

	for i, ptr := range ptrs {
		for j, b := range ptr {
			if b != byte(i) {
				t.Fatalf("memory corruption at ptrs[%d][%d]: got %d, want %d", i, j, b, byte(i))
			}
		}
	}
	require.NoError(t, p.Verify())
}

// TestBoundaryConditions tests the arena/large split and alignment
func TestBoundaryConditions(t *testing.T) {
	t.Run("HalfBlockStaysInArena", func(t *testing.T) {
		p := mempool.NewSegregatedPool(1024)
		defer p.Release()

		buf, err := p.AllocBytes(512)
		require.NoError(t, err)
		assert.Len(t, buf, 512)
		buf2, err := p.AllocBytes(512)
		require.NoError(t, err)
		assert.Len(t, buf2, 512)

		m := p.Metrics()
		assert.Equal(t, 1, m.Arenas)
		assert.Equal(t, 0, m.LargeAllocations)

		_, err = p.AllocBytes(1)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Metrics().Arenas)
	})

	t.Run("AlignmentBoundaries", func(t *testing.T) {
		p := mempool.NewSegregatedPool(1024)
		defer p.Release()

		align := unsafe.Sizeof(uintptr(0))
		for _, size := range []int{1, 2, 3, 4, 5, 7, 8, 9, 15, 16, 17} {
			buf, err := p.AllocBytes(size)
			require.NoError(t, err)
			require.Len(t, buf, size)
			addr := uintptr(unsafe.Pointer(&buf[0]))
			assert.Zero(t, addr%align, "buffer of size %d not aligned: %x", size, addr)
		}
	})
}

// TestTypeSpecificAllocations tests allocation of pointer-free Go types
func TestTypeSpecificAllocations(t *testing.T) {
	p := mempool.NewSegregatedPool(4096)
	defer p.Release()

	t.Run("BasicTypes", func(t *testing.T) {
		pBool, _ := mempool.Alloc[bool](p)
		pInt8, _ := mempool.Alloc[int8](p)
		pInt64, _ := mempool.Alloc[int64](p)
		pUint16, _ := mempool.Alloc[uint16](p)
		pFloat32, _ := mempool.Alloc[float32](p)
		pFloat64, _ := mempool.Alloc[float64](p)
		pComplex, _ := mempool.Alloc[complex128](p)

		assert.False(t, *pBool)
		assert.Zero(t, *pInt8)
		assert.Zero(t, *pInt64)
		assert.Zero(t, *pUint16)
		assert.Zero(t, *pFloat32)
		assert.Zero(t, *pFloat64)
		assert.Zero(t, *pComplex)

		*pBool = true
		*pInt64 = 12345
		*pFloat64 = 3.14159
		assert.True(t, *pBool)
		assert.Equal(t, int64(12345), *pInt64)
		assert.Equal(t, 3.14159, *pFloat64)
	})

	t.Run("PointerTypesRejected", func(t *testing.T) {
		type complexStruct struct {
			A int64
			B string
			C []int
			D map[string]int
			E *int
		}
		_, err := mempool.Alloc[complexStruct](p)
		require.ErrorIs(t, err, mempool.ErrPointerType)
	})

	t.Run("ArraysAndSlices", func(t *testing.T) {
		arr, err := mempool.Alloc[[10]int](p)
		require.NoError(t, err)
		for i := range arr {
			assert.Zero(t, arr[i])
			arr[i] = i * 2
		}

		slice, err := mempool.AllocSlice[int](p, 20)
		require.NoError(t, err)
		assert.Len(t, slice, 20)
		assert.Equal(t, 20, cap(slice))
		for i := range slice {
			slice[i] = i * 3
		}
		for i := range slice {
			assert.Equal(t, i*3, slice[i])
		}
	})
}

// TestResetBehavior checks that Reset keeps arenas and drops large allocations
func TestResetBehavior(t *testing.T) {
	p := mempool.NewSegregatedPool(1024)
	defer p.Release()

	for i := 0; i < 5; i++ {
		_, err := p.AllocBytes(512)
		require.NoError(t, err)
	}
	_, err := p.AllocBytes(4096)
	require.NoError(t, err)

	before := p.Metrics()
	require.Equal(t, 3, before.Arenas)
	require.NoError(t, p.Reset())

	after := p.Metrics()
	assert.Equal(t, before.Arenas, after.Arenas)
	assert.Equal(t, before.ArenaCapacity, after.ArenaCapacity)
	assert.Zero(t, after.ArenaInUse)
	assert.Zero(t, after.LargeAllocations)
	assert.Zero(t, after.Utilization)

	buf, err := p.AllocBytes(100)
	require.NoError(t, err)
	assert.Len(t, buf, 100)
}

// TestMemoryLeaks checks that released pools do not pin memory
func TestMemoryLeaks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping memory leak test in short mode")
	}

	var m1, m2 runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m1)

	for i := 0; i < 1000; i++ {
		p := mempool.NewSegregatedPool(1024)
		for j := 0; j < 100; j++ {
			_, _ = p.AllocBytes(64)
		}
		_ = p.Release()

		sp := mempool.NewSlotPool[[8]int64](64)
		for j := 0; j < 100; j++ {
			sp.Allocate()
		}
		sp.Release()
	}

	runtime.GC()
	runtime.ReadMemStats(&m2)

	if m2.Alloc > m1.Alloc*2 {
		t.Errorf("Potential memory leak: before=%d, after=%d", m1.Alloc, m2.Alloc)
	}
}

// TestConcurrencyStress performs stress testing on the safe wrappers
func TestConcurrencyStress(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	s := mempool.NewSafeSegregatedPool(64 * 1024)
	defer s.Release()
	slots := mempool.NewSafeSlotPool[int64](256)
	defer slots.Release()

	const (
		numWorkers      = 20
		numOpsPerWorker = 1000
	)

	var wg sync.WaitGroup
	errs := make(chan error, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < numOpsPerWorker; j++ {
				switch j % 5 {
				case 0:
					buf, err := s.AllocBytes(64)
					if err != nil || len(buf) != 64 {
						errs <- fmt.Errorf("worker %d: AllocBytes failed: %v", workerID, err)
						return
					}
					s.FreeBytes(buf)
				case 1:
					ptr, err := mempool.SafeAlloc[int64](s)
					if err != nil {
						errs <- err
						return
					}
					*ptr = int64(workerID*1000 + j)
					mempool.SafeFree(s, ptr)
				case 2:
					slice, err := mempool.SafeAllocSlice[int32](s, 10)
					if err != nil || len(slice) != 10 {
						errs <- fmt.Errorf("worker %d: AllocSlice failed: %v", workerID, err)
						return
					}
					mempool.SafeFreeSlice(s, slice)
				case 3:
					v := slots.Allocate()
					*v = int64(j)
					if err := slots.Deallocate(v); err != nil {
						errs <- err
						return
					}
				case 4:
					_ = s.Metrics()
					_ = slots.Metrics()
				}

				if j%50 == 0 {
					runtime.Gosched()
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, s.Metrics().ArenaInUse)
	assert.Zero(t, slots.Metrics().InUse)
}

// TestSafePoolDeadlock tests for deadlocks between allocation and metrics
func TestSafePoolDeadlock(t *testing.T) {
	s := mempool.NewSafeSegregatedPool(1024)
	defer s.Release()

	done := make(chan bool, 2)
	timeout := time.After(5 * time.Second)

	go func() {
		for i := 0; i < 1000; i++ {
			buf, _ := s.AllocBytes(32)
			s.FreeBytes(buf)
			if i%100 == 0 {
				runtime.Gosched()
			}
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 1000; i++ {
			_ = s.Metrics()
			if i%100 == 0 {
				runtime.Gosched()
			}
		}
		done <- true
	}()

	completed := 0
	for completed < 2 {
		select {
		case <-done:
			completed++
		case <-timeout:
			t.Fatal("Test timed out - possible deadlock")
		}
	}
}
