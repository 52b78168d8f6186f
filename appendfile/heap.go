package appendfile

import (
	"github.com/INLOpen/dedupstore/core"
	"github.com/cockroachdb/errors"
)

// Heap is a File of raw bytes holding record payloads.
type Heap struct {
	f *File
}

// NewHeap wraps f, which must have been opened with an element size of 1.
func NewHeap(f *File) (*Heap, error) {
	if f.elemSize != 1 {
		return nil, errors.Mark(errors.Newf("%s: heap needs element size 1, got %d", f.rel, f.elemSize), core.ErrPrecondition)
	}
	return &Heap{f: f}, nil
}

// File returns the underlying file.
func (h *Heap) File() *File { return h.f }

// Size returns the logical size in bytes.
func (h *Heap) Size() uint64 { return h.f.size }

// Append writes p at the end of the heap and returns its offset.
func (h *Heap) Append(p []byte) (uint64, error) {
	return h.f.append(p)
}

// ReadAt fills dst with the bytes at offset begin. The range must lie inside
// the logical size.
func (h *Heap) ReadAt(begin uint64, dst []byte) error {
	return h.f.readAt(begin, dst)
}
