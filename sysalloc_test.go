package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemAllocators(t *testing.T) {
	allocators := []struct {
		name string
		sa   SystemAllocator
	}{
		{"heap", HeapAllocator{}},
		{"mmap", MmapAllocator{}},
		{"tracking", NewTrackingAllocator(MmapAllocator{})},
	}

	for _, tt := range allocators {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.sa.Alloc(8192)
			require.NoError(t, err)
			require.Len(t, buf, 8192)
			for _, b := range buf {
				require.Zero(t, b)
			}
			buf[0], buf[8191] = 1, 2
			require.NoError(t, tt.sa.Free(buf))

			_, err = tt.sa.Alloc(0)
			require.ErrorIs(t, err, ErrAllocationFailure)
		})
	}
}

func TestTrackingAllocator(t *testing.T) {
	tr := NewTrackingAllocator(nil)

	a, err := tr.Alloc(100)
	require.NoError(t, err)
	b, err := tr.Alloc(50)
	require.NoError(t, err)

	buffers, bytes := tr.Live()
	assert.Equal(t, 2, buffers)
	assert.Equal(t, 150, bytes)

	require.NoError(t, tr.Free(a))
	require.NoError(t, tr.Free(b))
	buffers, bytes = tr.Live()
	assert.Zero(t, buffers)
	assert.Zero(t, bytes)

	allocs, frees := tr.Counts()
	assert.Equal(t, 2, allocs)
	assert.Equal(t, 2, frees)

	_, err = tr.Alloc(-1)
	require.Error(t, err)
	allocs, _ = tr.Counts()
	assert.Equal(t, 2, allocs, "failed requests are not counted")
}

func TestSegregatedPoolOnMmap(t *testing.T) {
	tr := NewTrackingAllocator(MmapAllocator{})
	p := NewSegregatedPool(4096, WithSystemAllocator(tr))

	small, err := AllocSlice[uint64](p, 32)
	require.NoError(t, err)
	large, err := AllocSlice[uint64](p, 1024)
	require.NoError(t, err)
	for i := range small {
		small[i] = uint64(i)
	}
	for i := range large {
		large[i] = uint64(i)
	}
	assert.Equal(t, uint64(31), small[31])
	assert.Equal(t, uint64(1023), large[1023])

	FreeSlice(p, large)
	require.NoError(t, p.Release())
	buffers, _ := tr.Live()
	assert.Zero(t, buffers)
}

func TestAllocationError(t *testing.T) {
	err := &AllocationError{Size: 64}
	assert.Equal(t, "mempool: allocate 64 bytes failed", err.Error())
	assert.ErrorIs(t, err, ErrAllocationFailure)
	assert.NotErrorIs(t, err, ErrInvalidPointer)
}
