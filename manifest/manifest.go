// Package manifest describes which files make up a volume and how much of
// each is in use. The manifest is the only source of truth for logical file
// sizes: it is rewritten after every commit and reset, and a volume is
// reopened from it without looking at the data files.
package manifest

import (
	"path/filepath"

	"github.com/INLOpen/dedupstore/core"
	"github.com/cockroachdb/errors"
)

// Info records the encoded struct sizes of the build that wrote the volume.
type Info struct {
	BlockHeaderSize       uint32
	RecordHeaderSize      uint32
	DedupBlockHeaderSize  uint32
	DedupRecordHeaderSize uint32
}

// CurrentInfo returns the struct sizes of this build.
func CurrentInfo() Info {
	return Info{
		BlockHeaderSize:       core.BlockHeaderSize,
		RecordHeaderSize:      core.RecordHeaderSize,
		DedupBlockHeaderSize:  core.BlockEntrySize,
		DedupRecordHeaderSize: core.RecordEntrySize,
	}
}

// Check fails if the volume was written with struct sizes this build cannot
// read.
func (i Info) Check() error {
	want := CurrentInfo()
	if i.BlockHeaderSize != want.BlockHeaderSize {
		return errors.Wrapf(core.ErrBadHeaderSize, "bad block header size %d, want %d", i.BlockHeaderSize, want.BlockHeaderSize)
	}
	if i.RecordHeaderSize != want.RecordHeaderSize {
		return errors.Wrapf(core.ErrBadHeaderSize, "bad record header size %d, want %d", i.RecordHeaderSize, want.RecordHeaderSize)
	}
	if i.DedupBlockHeaderSize != want.DedupBlockHeaderSize {
		return errors.Wrapf(core.ErrBadHeaderSize, "bad dedup block header size %d, want %d", i.DedupBlockHeaderSize, want.DedupBlockHeaderSize)
	}
	if i.DedupRecordHeaderSize != want.DedupRecordHeaderSize {
		return errors.Wrapf(core.ErrBadHeaderSize, "bad dedup record header size %d, want %d", i.DedupRecordHeaderSize, want.DedupRecordHeaderSize)
	}
	return nil
}

// IndexFile is a block or record file; [Start, End) is the range of entries
// in use.
type IndexFile struct {
	Path  string
	Start uint64
	End   uint64
	Idx   uint32
}

// Len returns the number of entries in use.
func (f IndexFile) Len() uint64 { return f.End - f.Start }

// DataFile is a payload heap. Idx is the value records use to refer to it and
// is never reused within a volume.
type DataFile struct {
	Path      string
	Size      uint64 // logical size in bytes
	BlockSize uint64 // size class
	Idx       uint32
	ReadOnly  bool
}

// Manifest is the decoded content of a volume's config file.
type Manifest struct {
	Info        Info
	BlockFiles  []IndexFile
	RecordFiles []IndexFile
	DataFiles   []DataFile
}

// Default returns the manifest of a new, empty volume: one block file, one
// record file, an aligned data file for payloads that are multiples of
// dedupBlockSize and an unaligned fallback for everything else.
func Default(dedupBlockSize uint64) *Manifest {
	if dedupBlockSize == 0 {
		dedupBlockSize = core.DefaultDedupBlockSize
	}
	m := &Manifest{
		Info:        CurrentInfo(),
		BlockFiles:  []IndexFile{{Path: core.DefaultBlockFileName}},
		RecordFiles: []IndexFile{{Path: core.DefaultRecordFileName}},
	}
	if dedupBlockSize != core.AnySize {
		m.DataFiles = append(m.DataFiles, DataFile{Path: core.DefaultAlignedDataName, BlockSize: dedupBlockSize, Idx: 0})
	}
	m.DataFiles = append(m.DataFiles, DataFile{Path: core.DefaultUnalignedDataName, BlockSize: core.AnySize, Idx: uint32(len(m.DataFiles))})
	return m
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{Info: m.Info}
	c.BlockFiles = append([]IndexFile(nil), m.BlockFiles...)
	c.RecordFiles = append([]IndexFile(nil), m.RecordFiles...)
	c.DataFiles = append([]DataFile(nil), m.DataFiles...)
	return c
}

// NextDataIdx returns an Idx no data file has used yet.
func (m *Manifest) NextDataIdx() uint32 {
	var next uint32
	for _, df := range m.DataFiles {
		if df.Idx >= next {
			next = df.Idx + 1
		}
	}
	return next
}

// Validate checks the structural invariants of a volume. When writable is
// set it also requires a writable fallback data file, so that every payload
// size can be routed.
func (m *Manifest) Validate(writable bool) error {
	if len(m.BlockFiles) != 1 {
		return errors.Wrapf(core.ErrBadFileCount, "num blockfiles != 1 (got %d)", len(m.BlockFiles))
	}
	if len(m.RecordFiles) != 1 {
		return errors.Wrapf(core.ErrBadFileCount, "num recordfiles != 1 (got %d)", len(m.RecordFiles))
	}
	if len(m.DataFiles) < 1 {
		return errors.Wrapf(core.ErrBadFileCount, "num datafiles < 1 (got %d)", len(m.DataFiles))
	}

	paths := make(map[string]struct{})
	checkPath := func(p string) error {
		if !filepath.IsLocal(p) {
			return errors.Wrapf(core.ErrInvalidManifest, "path %q is not inside the volume", p)
		}
		clean := filepath.Clean(p)
		if clean == core.ManifestFileName || clean == core.LockFileName {
			return errors.Wrapf(core.ErrInvalidManifest, "path %q is reserved", p)
		}
		if _, dup := paths[clean]; dup {
			return errors.Wrapf(core.ErrInvalidManifest, "path %q is used twice", p)
		}
		paths[clean] = struct{}{}
		return nil
	}

	for _, files := range [][]IndexFile{m.BlockFiles, m.RecordFiles} {
		for _, f := range files {
			if err := checkPath(f.Path); err != nil {
				return err
			}
			if f.Start > f.End {
				return errors.Wrapf(core.ErrInvalidManifest, "%s: start %d > end %d", f.Path, f.Start, f.End)
			}
		}
	}

	ids := make(map[uint32]struct{})
	fallbacks := 0
	for _, df := range m.DataFiles {
		if err := checkPath(df.Path); err != nil {
			return err
		}
		if df.BlockSize == 0 {
			return errors.Wrapf(core.ErrInvalidManifest, "%s: block size 0", df.Path)
		}
		if _, dup := ids[df.Idx]; dup {
			return errors.Wrapf(core.ErrInvalidManifest, "data file index %d is used twice", df.Idx)
		}
		ids[df.Idx] = struct{}{}
		if df.BlockSize == core.AnySize && !df.ReadOnly {
			fallbacks++
		}
	}
	if fallbacks > 1 {
		return errors.Wrapf(core.ErrInvalidManifest, "%d writable data files accept any size", fallbacks)
	}
	if writable && fallbacks == 0 {
		return errors.Wrap(core.ErrInvalidManifest, "no writable data file accepts every size")
	}
	return nil
}
