package appendfile

import (
	"github.com/INLOpen/dedupstore/core"
	"github.com/cockroachdb/errors"
)

// Codec encodes values of T into fixed-size elements.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// Array is a File whose elements are values of T.
type Array[T any] struct {
	f     *File
	codec Codec[T]
	buf   []byte
}

// NewArray wraps f. The element size of f must match the codec.
func NewArray[T any](f *File, codec Codec[T]) (*Array[T], error) {
	if f.elemSize != codec.Size() {
		return nil, errors.Mark(errors.Newf("%s: element size %d does not match codec size %d",
			f.rel, f.elemSize, codec.Size()), core.ErrPrecondition)
	}
	return &Array[T]{f: f, codec: codec}, nil
}

// File returns the underlying file.
func (a *Array[T]) File() *File { return a.f }

// Size returns the logical number of elements.
func (a *Array[T]) Size() uint64 { return a.f.size }

func (a *Array[T]) scratch(n int) []byte {
	if cap(a.buf) < n {
		a.buf = make([]byte, n)
	}
	return a.buf[:n]
}

// PushBack appends v and returns its index.
func (a *Array[T]) PushBack(v T) (uint64, error) {
	buf := a.scratch(a.codec.Size())
	a.codec.Encode(buf, v)
	return a.f.append(buf)
}

// PushBackArray appends vs with a single write and returns the index of the
// first one.
func (a *Array[T]) PushBackArray(vs []T) (uint64, error) {
	size := a.codec.Size()
	buf := a.scratch(size * len(vs))
	for i, v := range vs {
		a.codec.Encode(buf[i*size:(i+1)*size], v)
	}
	return a.f.append(buf)
}

// At returns the element at index i.
func (a *Array[T]) At(i uint64) (T, error) {
	vs, err := a.ReadAt(i, 1)
	if err != nil {
		var zero T
		return zero, err
	}
	return vs[0], nil
}

// ReadAt returns count elements starting at index i.
func (a *Array[T]) ReadAt(i, count uint64) ([]T, error) {
	size := a.codec.Size()
	if count > a.f.size || i > a.f.size-count {
		return nil, errors.Wrapf(core.ErrRangeExceeded, "%s: %d elements at %d, have %d",
			a.f.rel, count, i, a.f.size)
	}
	buf := a.scratch(size * int(count))
	if err := a.f.readAt(i, buf); err != nil {
		return nil, err
	}
	out := make([]T, count)
	for j := range out {
		out[j] = a.codec.Decode(buf[j*size : (j+1)*size])
	}
	return out, nil
}
