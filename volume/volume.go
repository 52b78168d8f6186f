// Package volume implements a deduplicating backup volume: a directory
// holding a block index, a record index and payload data files sorted by
// size class, described by a manifest that is rewritten after every commit.
//
// A Volume is not safe for concurrent use. Writers take an exclusive lock on
// the directory so that two processes never append to the same volume.
package volume

import (
	"log/slog"
	"path/filepath"

	"github.com/INLOpen/dedupstore/appendfile"
	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/manifest"
	"github.com/INLOpen/dedupstore/sizeclass"
	"github.com/INLOpen/dedupstore/sys"
	"github.com/cockroachdb/errors"
)

type dataFile struct {
	meta manifest.DataFile
	heap *appendfile.Heap
}

func (d *dataFile) BlockSize() uint64 { return d.meta.BlockSize }
func (d *dataFile) Writable() bool    { return !d.meta.ReadOnly }

// Position is the block the next Read returns and the first record that
// belongs to it. Block and record positions always move together.
type Position struct {
	Block  uint64
	Record uint64
}

// Volume is an open volume directory.
type Volume struct {
	dir  string
	mode core.OpenMode
	opts Options

	man     *manifest.Manifest
	blocks  *appendfile.Array[core.Block]
	records *appendfile.Array[core.Record]
	data    []*dataFile
	byIdx   map[uint32]*dataFile

	// Block numbers and record indices are global; entry i of the block
	// file is block blockBase+i.
	blockBase  uint64
	recordBase uint64

	pos        Position
	inBlock    bool
	generation uint64

	unlock func() error
	closed bool
	// failed is set when the files and the manifest may disagree.
	failed error

	logger  *slog.Logger
	metrics *Metrics
}

// CreateNew creates an empty volume in dir, creating dir if needed. It fails
// with core.ErrVolumeExists if dir already holds a volume.
func CreateNew(dir string, opts Options) (*Volume, error) {
	if err := sys.MkdirAll(dir, opts.dirMode()); err != nil {
		return nil, core.IOError(err, "mkdir", dir)
	}
	unlock, err := lockVolume(dir, opts)
	if err != nil {
		return nil, err
	}
	exists, err := manifest.Exists(dir)
	if err != nil {
		unlock()
		return nil, err
	}
	if exists {
		unlock()
		return nil, errors.Wrapf(core.ErrVolumeExists, "%s", dir)
	}

	v, err := openFiles(dir, core.CreateReadWrite, manifest.Default(opts.DedupBlockSize), opts)
	if err != nil {
		unlock()
		return nil, err
	}
	v.unlock = unlock
	if err := v.writeManifest(); err != nil {
		v.Close()
		return nil, err
	}
	v.logger.Info("Volume created.", "dedup_block_size", opts.DedupBlockSize)
	return v, nil
}

// Open opens the volume in dir. CreateReadWrite creates the volume if dir
// holds none and otherwise behaves like OpenReadWrite.
func Open(dir string, mode core.OpenMode, opts Options) (*Volume, error) {
	if mode > core.OpenWriteOnly {
		return nil, errors.Mark(errors.Newf("unknown open mode %d", mode), core.ErrPrecondition)
	}
	if mode == core.CreateReadWrite {
		exists, err := manifest.Exists(dir)
		if err != nil {
			return nil, err
		}
		if !exists {
			return CreateNew(dir, opts)
		}
		mode = core.OpenReadWrite
	}

	var unlock func() error
	if mode.CanWrite() {
		var err error
		if unlock, err = lockVolume(dir, opts); err != nil {
			return nil, err
		}
	}
	release := func() {
		if unlock != nil {
			unlock()
		}
	}

	m, err := manifest.Read(dir)
	if err != nil {
		release()
		return nil, err
	}
	if err := m.Info.Check(); err != nil {
		release()
		return nil, errors.Wrapf(err, "%s", dir)
	}
	if err := m.Validate(mode.CanWrite()); err != nil {
		release()
		return nil, errors.Wrapf(err, "%s", dir)
	}

	v, err := openFiles(dir, mode, m, opts)
	if err != nil {
		release()
		return nil, err
	}
	v.unlock = unlock
	v.logger.Info("Volume opened.", "mode", mode.String(), "blocks", v.NumBlocks(), "records", v.NumRecords())
	return v, nil
}

func lockVolume(dir string, opts Options) (func() error, error) {
	if !opts.Lock {
		return func() error { return nil }, nil
	}
	path := filepath.Join(dir, core.LockFileName)
	unlock, err := sys.AcquireFileLock(path, sys.DefaultLockStaleTTL)
	if err != nil {
		if errors.Is(err, sys.ErrLockHeld) {
			return nil, errors.Wrapf(core.ErrVolumeLocked, "%s", dir)
		}
		return nil, core.IOError(err, "lock", path)
	}
	return unlock, nil
}

// openFiles opens every file m lists. The manifest is trusted for logical
// sizes; physical file lengths are only checked to be large enough.
func openFiles(dir string, mode core.OpenMode, m *manifest.Manifest, opts Options) (_ *Volume, err error) {
	logger := opts.logger().With("component", "Volume", "dir", dir)
	v := &Volume{
		dir:     dir,
		mode:    mode,
		opts:    opts,
		man:     m.Clone(),
		byIdx:   make(map[uint32]*dataFile, len(m.DataFiles)),
		logger:  logger,
		metrics: opts.Metrics,
	}
	defer func() {
		if err != nil {
			v.closeFiles()
		}
	}()

	bf := m.BlockFiles[0]
	f, err := appendfile.Open(dir, bf.Path, mode, core.BlockEntrySize, bf.Len(), opts.indexOptions(core.BlockEntrySize, logger))
	if err != nil {
		return nil, err
	}
	if v.blocks, err = appendfile.NewArray[core.Block](f, core.BlockCodec{}); err != nil {
		f.Close()
		return nil, err
	}
	v.blockBase = bf.Start

	rf := m.RecordFiles[0]
	f, err = appendfile.Open(dir, rf.Path, mode, core.RecordEntrySize, rf.Len(), opts.indexOptions(core.RecordEntrySize, logger))
	if err != nil {
		return nil, err
	}
	if v.records, err = appendfile.NewArray[core.Record](f, core.RecordCodec{}); err != nil {
		f.Close()
		return nil, err
	}
	v.recordBase = rf.Start

	for _, meta := range m.DataFiles {
		fileMode := mode
		if meta.ReadOnly && mode.CanWrite() {
			fileMode = core.OpenReadOnly
		}
		f, err := appendfile.Open(dir, meta.Path, fileMode, 1, meta.Size, opts.dataOptions(logger))
		if err != nil {
			return nil, err
		}
		heap, err := appendfile.NewHeap(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		df := &dataFile{meta: meta, heap: heap}
		v.data = append(v.data, df)
		v.byIdx[meta.Idx] = df
	}

	if mode.CanWrite() && !sizeclass.Total(v.data) {
		return nil, errors.Wrap(core.ErrInvalidManifest, "no writable data file accepts every size")
	}
	v.GotoBegin()
	return v, nil
}

func (v *Volume) closeFiles() error {
	var err error
	if v.blocks != nil {
		err = errors.CombineErrors(err, v.blocks.File().Close())
	}
	if v.records != nil {
		err = errors.CombineErrors(err, v.records.File().Close())
	}
	for _, df := range v.data {
		err = errors.CombineErrors(err, df.heap.File().Close())
	}
	return err
}

// snapshot returns the manifest describing the current logical sizes.
func (v *Volume) snapshot() *manifest.Manifest {
	m := v.man.Clone()
	m.BlockFiles[0].Start = v.blockBase
	m.BlockFiles[0].End = v.blockBase + v.blocks.Size()
	m.RecordFiles[0].Start = v.recordBase
	m.RecordFiles[0].End = v.recordBase + v.records.Size()
	m.DataFiles = m.DataFiles[:0]
	for _, df := range v.data {
		meta := df.meta
		meta.Size = df.heap.Size()
		m.DataFiles = append(m.DataFiles, meta)
	}
	return m
}

func (v *Volume) writeManifest() error {
	m := v.snapshot()
	if err := manifest.Write(v.dir, m, v.opts.fileMode()); err != nil {
		v.logger.Error("Failed to write manifest.", "error", err)
		return err
	}
	v.man = m
	v.metrics.manifestWritten()
	return nil
}

func (v *Volume) check() error {
	if v.closed {
		return core.ErrClosed
	}
	return v.failed
}

// Dir returns the volume directory.
func (v *Volume) Dir() string { return v.dir }

// Mode returns the mode the volume was opened with. A CreateReadWrite open of
// an existing volume reports OpenReadWrite.
func (v *Volume) Mode() core.OpenMode { return v.mode }

// IsOK reports whether the volume is open and its files agree with the
// manifest on disk.
func (v *Volume) IsOK() bool { return v.check() == nil }

// Err returns why the volume is not OK: ErrClosed after Close, or the error
// that left it in an unknown state.
func (v *Volume) Err() error { return v.check() }

// NumBlocks returns the number of the block after the last committed one.
func (v *Volume) NumBlocks() uint64 { return v.blockBase + v.blocks.Size() }

// NumRecords returns the index of the record after the last committed one.
func (v *Volume) NumRecords() uint64 { return v.recordBase + v.records.Size() }

// Manifest returns a copy of the manifest as it was last written.
func (v *Volume) Manifest() *manifest.Manifest { return v.man.Clone() }

// Flush makes every appended byte durable.
func (v *Volume) Flush() error {
	if err := v.check(); err != nil {
		return err
	}
	return v.flushFiles()
}

func (v *Volume) flushFiles() error {
	if !v.mode.CanWrite() {
		return nil
	}
	for _, df := range v.data {
		if err := df.heap.File().Flush(); err != nil {
			return err
		}
	}
	if err := v.records.File().Flush(); err != nil {
		return err
	}
	return v.blocks.File().Flush()
}

// Close closes every file and releases the lock. A block still in progress
// is rolled back.
func (v *Volume) Close() error {
	if v.closed {
		return nil
	}
	var err error
	if v.inBlock {
		v.logger.Warn("Closing volume with a block in progress, rolling back.")
		v.inBlock = false
	}
	if v.mode.CanWrite() && v.failed == nil {
		err = v.flushFiles()
	}
	err = errors.CombineErrors(err, v.closeFiles())
	if v.unlock != nil {
		err = errors.CombineErrors(err, v.unlock())
		v.unlock = nil
	}
	v.closed = true
	return err
}
