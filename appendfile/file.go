// Package appendfile implements the append-only files a volume is made of.
//
// A File tracks its logical size in memory. The physical file on disk is
// grown in large chunks and may be longer than the logical size; bytes past
// the logical end are garbage left by aborted writes or pre-growth and are
// never read.
package appendfile

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/sys"
	"github.com/cockroachdb/errors"
)

const (
	// DefaultGrowBytes is the minimum physical growth step.
	DefaultGrowBytes = 128 * 1024
	// maxGrowBytes caps a single growth step so large files don't double forever.
	maxGrowBytes = 64 * 1024 * 1024
)

// Options control how a File is opened and grown.
type Options struct {
	// GrowBytes is the minimum number of bytes the physical file grows by.
	GrowBytes int64
	// Preallocate reserves growth with fallocate instead of ftruncate.
	Preallocate bool
	// Perm is used when the file is created.
	Perm   os.FileMode
	Logger *slog.Logger
}

// File is an append-only file of fixed-size elements.
type File struct {
	path     string
	rel      string
	handle   sys.FileHandle
	mode     core.OpenMode
	elemSize int

	size     uint64 // logical element count
	physical int64  // physical length in bytes

	growBytes   int64
	preallocate bool
	logger      *slog.Logger
}

func openFlags(mode core.OpenMode) (int, error) {
	switch mode {
	case core.CreateReadWrite:
		return os.O_RDWR | os.O_CREATE, nil
	case core.OpenReadWrite:
		return os.O_RDWR, nil
	case core.OpenReadOnly:
		return os.O_RDONLY, nil
	case core.OpenWriteOnly:
		return os.O_WRONLY, nil
	default:
		return 0, errors.Mark(errors.Newf("unknown open mode %d", mode), core.ErrPrecondition)
	}
}

// Open opens the file rel inside dir. count is the logical element count as
// recorded in the manifest; the physical file must be at least that long.
func Open(dir, rel string, mode core.OpenMode, elemSize int, count uint64, opts Options) (*File, error) {
	if elemSize <= 0 {
		return nil, errors.Mark(errors.Newf("invalid element size %d", elemSize), core.ErrPrecondition)
	}
	if !filepath.IsLocal(rel) {
		return nil, errors.Wrapf(core.ErrInvalidManifest, "path %q escapes the volume directory", rel)
	}
	flags, err := openFlags(mode)
	if err != nil {
		return nil, err
	}
	perm := opts.Perm
	if perm == 0 {
		perm = 0600
	}
	path := filepath.Join(dir, rel)
	handle, err := sys.OpenFile(path, flags, perm)
	if err != nil {
		return nil, core.IOError(err, "open", path)
	}

	info, err := handle.Stat()
	if err != nil {
		handle.Close()
		return nil, core.IOError(err, "stat", path)
	}
	logical := count * uint64(elemSize)
	if uint64(info.Size()) < logical {
		handle.Close()
		return nil, errors.Wrapf(core.ErrFileTooShort, "%s: %d bytes on disk, %d expected", path, info.Size(), logical)
	}

	growBytes := opts.GrowBytes
	if growBytes <= 0 {
		growBytes = DefaultGrowBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &File{
		path:        path,
		rel:         rel,
		handle:      handle,
		mode:        mode,
		elemSize:    elemSize,
		size:        count,
		physical:    info.Size(),
		growBytes:   growBytes,
		preallocate: opts.Preallocate,
		logger:      logger.With("file", rel),
	}, nil
}

// Size returns the logical number of elements.
func (f *File) Size() uint64 { return f.size }

// Capacity returns the physical length of the file in bytes.
func (f *File) Capacity() int64 { return f.physical }

// ElemSize returns the size in bytes of one element.
func (f *File) ElemSize() int { return f.elemSize }

// Path returns the path of the file relative to its volume directory.
func (f *File) Path() string { return f.rel }

// Mode returns the mode the file was opened with.
func (f *File) Mode() core.OpenMode { return f.mode }

// grow makes sure the physical file can hold needed bytes.
func (f *File) grow(needed int64) error {
	if needed <= f.physical {
		return nil
	}
	step := f.physical
	if step < f.growBytes {
		step = f.growBytes
	}
	if step > maxGrowBytes {
		step = maxGrowBytes
	}
	target := f.physical + step
	if target < needed {
		target = (needed + f.growBytes - 1) / f.growBytes * f.growBytes
	}

	if f.preallocate {
		err := sys.Preallocate(f.handle, f.physical, target-f.physical)
		if err == nil {
			f.physical = target
			return nil
		}
		if !errors.Is(err, sys.ErrPreallocNotSupported) {
			return core.IOError(err, "fallocate", f.path)
		}
		f.logger.Warn("Preallocation not supported, falling back to truncate.")
		f.preallocate = false
	}
	if err := f.handle.Truncate(target); err != nil {
		return core.IOError(err, "truncate", f.path)
	}
	f.physical = target
	return nil
}

// append writes data, which must be a whole number of elements, at the
// logical end and returns the index of the first element written.
func (f *File) append(data []byte) (uint64, error) {
	if !f.mode.CanWrite() {
		return 0, errors.Wrapf(core.ErrReadOnly, "append to %s", f.rel)
	}
	if len(data)%f.elemSize != 0 {
		return 0, errors.Mark(errors.Newf("append of %d bytes to %s is not a multiple of %d", len(data), f.rel, f.elemSize), core.ErrPrecondition)
	}
	start := f.size
	off := int64(start) * int64(f.elemSize)
	if err := f.grow(off + int64(len(data))); err != nil {
		return 0, err
	}
	if _, err := f.handle.WriteAt(data, off); err != nil {
		return 0, core.IOError(err, "write", f.path)
	}
	f.size += uint64(len(data) / f.elemSize)
	return start, nil
}

// readAt fills dst with the bytes starting at element index. The whole range
// must lie inside the logical size.
func (f *File) readAt(index uint64, dst []byte) error {
	if !f.mode.CanRead() {
		return errors.Wrapf(core.ErrWriteOnly, "read from %s", f.rel)
	}
	end := index*uint64(f.elemSize) + uint64(len(dst))
	if index > f.size || end > f.size*uint64(f.elemSize) {
		return errors.Wrapf(core.ErrRangeExceeded, "%s: read [%d, %d) of %d bytes",
			f.rel, index*uint64(f.elemSize), end, f.size*uint64(f.elemSize))
	}
	if len(dst) == 0 {
		return nil
	}
	if _, err := f.handle.ReadAt(dst, int64(index)*int64(f.elemSize)); err != nil {
		return core.IOError(err, "read", f.path)
	}
	return nil
}

// ResizeUninitialized sets the logical size to n, which must not exceed the
// current size. Bytes past n stay on disk and are overwritten by the next
// append.
func (f *File) ResizeUninitialized(n uint64) error {
	if n > f.size {
		return errors.Wrapf(core.ErrGrow, "%s: resize from %d to %d", f.rel, f.size, n)
	}
	if n != f.size && !f.mode.CanWrite() {
		return errors.Wrapf(core.ErrReadOnly, "resize %s", f.rel)
	}
	f.size = n
	return nil
}

// Truncate sets the logical size to zero. The physical allocation is kept.
func (f *File) Truncate() error {
	return f.ResizeUninitialized(0)
}

// Flush makes every write so far durable.
func (f *File) Flush() error {
	if !f.mode.CanWrite() {
		return nil
	}
	if err := f.handle.Sync(); err != nil {
		return core.IOError(err, "sync", f.path)
	}
	return nil
}

// Close releases the file handle. Physical pre-growth is left in place; the
// manifest records the logical size.
func (f *File) Close() error {
	if f.handle == nil {
		return nil
	}
	err := f.handle.Close()
	f.handle = nil
	if err != nil {
		return core.IOError(err, "close", f.path)
	}
	return nil
}
