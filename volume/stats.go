package volume

import (
	"github.com/INLOpen/dedupstore/core"
	"github.com/cockroachdb/errors"
)

// File roles reported by Layout.
const (
	RoleBlock  = "block"
	RoleRecord = "record"
	RoleData   = "data"
)

// FileStat describes one file of the volume. For index files Start and End
// are entry numbers, for data files byte offsets.
type FileStat struct {
	Role      string
	Path      string
	Idx       uint32
	BlockSize uint64
	ReadOnly  bool
	Start     uint64
	End       uint64
	Capacity  int64 // physical bytes on disk
}

// Layout describes every file of the volume in manifest order.
func (v *Volume) Layout() []FileStat {
	bf, rf := v.man.BlockFiles[0], v.man.RecordFiles[0]
	out := []FileStat{
		{
			Role:      RoleBlock,
			Path:      bf.Path,
			Idx:       bf.Idx,
			BlockSize: core.BlockEntrySize,
			Start:     v.blockBase,
			End:       v.NumBlocks(),
			Capacity:  v.blocks.File().Capacity(),
		},
		{
			Role:      RoleRecord,
			Path:      rf.Path,
			Idx:       rf.Idx,
			BlockSize: core.RecordEntrySize,
			Start:     v.recordBase,
			End:       v.NumRecords(),
			Capacity:  v.records.File().Capacity(),
		},
	}
	for _, df := range v.data {
		out = append(out, FileStat{
			Role:      RoleData,
			Path:      df.meta.Path,
			Idx:       df.meta.Idx,
			BlockSize: df.meta.BlockSize,
			ReadOnly:  df.meta.ReadOnly,
			End:       df.heap.Size(),
			Capacity:  df.heap.File().Capacity(),
		})
	}
	return out
}

const scanBatch = 1024

// Records calls fn for every committed record in index order.
func (v *Volume) Records(fn func(idx uint64, r core.Record) error) error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.mode.CanRead() {
		return errors.Wrap(core.ErrWriteOnly, "scan records")
	}
	total := v.records.Size()
	for start := uint64(0); start < total; start += scanBatch {
		n := min(uint64(scanBatch), total-start)
		recs, err := v.records.ReadAt(start, n)
		if err != nil {
			return err
		}
		for i, r := range recs {
			if err := fn(v.recordBase+start+uint64(i), r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify checks that the blocks tile the record file without gaps and that
// every record's payload lies inside a data file the volume knows. It does
// not read payload bytes.
func (v *Volume) Verify() error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.mode.CanRead() {
		return errors.Wrap(core.ErrWriteOnly, "verify")
	}
	next := v.recordBase
	for start := uint64(0); start < v.blocks.Size(); start += scanBatch {
		n := min(uint64(scanBatch), v.blocks.Size()-start)
		blocks, err := v.blocks.ReadAt(start, n)
		if err != nil {
			return err
		}
		for i, b := range blocks {
			if b.Begin != next {
				return errors.Mark(errors.Newf("block %d starts at record %d, want %d",
					v.blockBase+start+uint64(i), b.Begin, next), core.ErrConsistency)
			}
			if b.Count > v.NumRecords()-b.Begin {
				return errors.Wrapf(core.ErrRangeExceeded, "block %d: %d records at %d, record file ends at %d",
					v.blockBase+start+uint64(i), b.Count, b.Begin, v.NumRecords())
			}
			next = b.End()
		}
	}
	if next != v.NumRecords() {
		return errors.Mark(errors.Newf("blocks cover records up to %d, record file ends at %d",
			next, v.NumRecords()), core.ErrConsistency)
	}

	return v.Records(func(idx uint64, r core.Record) error {
		df, ok := v.byIdx[uint32(r.FileIdx)]
		if !ok || uint64(df.meta.Idx) != r.FileIdx {
			return errors.Wrapf(core.ErrUnknownDataFile, "record %d: data file %d", idx, r.FileIdx)
		}
		if size := df.heap.Size(); r.Begin > size || uint64(r.Size) > size-r.Begin {
			return errors.Wrapf(core.ErrRangeExceeded, "record %d: %d bytes at %d past %s size %d",
				idx, r.Size, r.Begin, df.meta.Path, size)
		}
		return nil
	})
}
