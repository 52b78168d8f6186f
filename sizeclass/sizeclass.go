// Package sizeclass routes record payloads to data files by size class.
package sizeclass

// Class is a data file as seen by the router.
type Class interface {
	// BlockSize is the size class; a payload fits iff its size is a multiple of it.
	BlockSize() uint64
	// Writable reports whether the file may receive new payloads.
	Writable() bool
}

// Accepts reports whether c may receive a payload of the given size.
func Accepts(c Class, size uint64) bool {
	bs := c.BlockSize()
	return bs != 0 && c.Writable() && size%bs == 0
}

// Select returns the index of the file that should receive a payload of the
// given size: among the writable files whose BlockSize divides size, the one
// with the largest BlockSize. Ties go to the earliest file. It returns false
// when no file accepts the payload, which cannot happen if files contains a
// writable file with BlockSize 1.
func Select[C Class](files []C, size uint64) (int, bool) {
	best := -1
	var bestSize uint64
	for i, f := range files {
		if !Accepts(f, size) {
			continue
		}
		if bs := f.BlockSize(); best < 0 || bs > bestSize {
			best, bestSize = i, bs
		}
	}
	return best, best >= 0
}

// Total reports whether Select succeeds for every payload size, i.e. whether
// files contains a writable fallback with BlockSize 1.
func Total[C Class](files []C) bool {
	for _, f := range files {
		if f.BlockSize() == 1 && f.Writable() {
			return true
		}
	}
	return false
}
