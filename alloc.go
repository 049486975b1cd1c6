package mempool

import (
	"math"
	"reflect"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Alloc returns a zeroed *T carved from the pool.
func Alloc[T any](p *SegregatedPool) (*T, error) {
	ptr, size, err := allocElems[T](p, 1)
	if err != nil {
		return nil, err
	}
	clear(unsafe.Slice((*byte)(ptr), size))
	return (*T)(ptr), nil
}

// AllocSlice returns n elements of T carved from the pool. Memory recycled
// from an earlier allocation is not cleared.
func AllocSlice[T any](p *SegregatedPool, n int) ([]T, error) {
	ptr, _, err := allocElems[T](p, n)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(ptr), n), nil
}

// AllocSliceZeroed is AllocSlice with the elements cleared.
func AllocSliceZeroed[T any](p *SegregatedPool, n int) ([]T, error) {
	s, err := AllocSlice[T](p, n)
	if err != nil {
		return nil, err
	}
	clear(s)
	return s, nil
}

// Free returns a value obtained from Alloc.
func Free[T any](p *SegregatedPool, v *T) {
	p.Deallocate(unsafe.Pointer(v))
}

// FreeSlice returns a slice obtained from AllocSlice or AllocSliceZeroed.
func FreeSlice[T any](p *SegregatedPool, s []T) {
	if cap(s) == 0 {
		return
	}
	p.Deallocate(unsafe.Pointer(unsafe.SliceData(s)))
}

func allocElems[T any](p *SegregatedPool, n int) (unsafe.Pointer, int, error) {
	if n <= 0 {
		return nil, 0, errors.Wrapf(ErrInvalidLength, "%d elements", n)
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if hasPointers(t) {
		return nil, 0, errors.Wrapf(ErrPointerType, "%s", t)
	}
	elem := int(t.Size())
	if elem == 0 {
		// Zero-size types still get a distinct address.
		elem = 1
	}
	if n > math.MaxInt/elem {
		return nil, 0, errors.Wrapf(ErrInvalidLength, "%d elements of %d bytes", n, elem)
	}
	size := elem * n
	ptr, err := p.allocate(size)
	if err != nil {
		return nil, 0, err
	}
	return ptr, size, nil
}

var pointerTypes sync.Map // reflect.Type -> bool

// hasPointers reports whether values of t hold anything the garbage
// collector would need to trace.
func hasPointers(t reflect.Type) bool {
	if v, ok := pointerTypes.Load(t); ok {
		return v.(bool)
	}
	has := scanPointers(t)
	pointerTypes.Store(t, has)
	return has
}

func scanPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return t.Len() > 0 && scanPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if scanPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}
