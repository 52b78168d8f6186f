package volume

import (
	"math"
	"time"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/sizeclass"
	"github.com/cockroachdb/errors"
)

// SaveState is the undo point of a block in progress.
type SaveState struct {
	blocks     uint64
	records    uint64
	data       []uint64
	generation uint64
}

// BeginBlock starts a new block and returns the state AbortBlock rolls back to.
func (v *Volume) BeginBlock() (SaveState, error) {
	if err := v.check(); err != nil {
		return SaveState{}, err
	}
	if !v.mode.CanWrite() {
		return SaveState{}, errors.Wrapf(core.ErrReadOnly, "begin block on %s", v.dir)
	}
	if v.inBlock {
		return SaveState{}, core.ErrBlockInProgress
	}
	v.generation++
	save := SaveState{
		blocks:     v.blocks.Size(),
		records:    v.records.Size(),
		data:       make([]uint64, len(v.data)),
		generation: v.generation,
	}
	for i, df := range v.data {
		save.data[i] = df.heap.Size()
	}
	v.inBlock = true
	return save, nil
}

// PushRecord appends one record of the block in progress. The payload goes
// to the data file with the largest size class that divides its length.
// On error the caller must call AbortBlock.
func (v *Volume) PushRecord(hdr core.RecordHeader, payload []byte) error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.inBlock {
		return core.ErrNoActiveBlock
	}
	if err := checkPayloadSize(uint64(len(payload))); err != nil {
		return err
	}
	i, ok := sizeclass.Select(v.data, uint64(len(payload)))
	if !ok {
		return errors.Wrapf(core.ErrInvalidManifest, "no data file accepts %d bytes", len(payload))
	}
	df := v.data[i]
	begin, err := df.heap.Append(payload)
	if err != nil {
		return err
	}
	_, err = v.records.PushBack(core.Record{
		Header:  hdr,
		Size:    uint32(len(payload)),
		Begin:   begin,
		FileIdx: uint64(df.meta.Idx),
	})
	if err != nil {
		return err
	}
	v.metrics.wrote(len(payload))
	return nil
}

// checkPayloadSize rejects payloads whose length does not fit a record entry.
func checkPayloadSize(n uint64) error {
	if n > math.MaxUint32 {
		return errors.Mark(errors.Newf("payload of %d bytes exceeds %d", n, uint64(math.MaxUint32)), core.ErrPrecondition)
	}
	return nil
}

func (v *Volume) matches(save SaveState) bool {
	return v.inBlock && save.generation == v.generation && len(save.data) == len(v.data)
}

// CommitBlock appends the block entry covering every record pushed since
// BeginBlock and rewrites the manifest. If anything fails before the
// manifest is written the block is rolled back.
func (v *Volume) CommitBlock(save SaveState, hdr core.BlockHeader) error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.matches(save) {
		return core.ErrNoActiveBlock
	}

	count := v.records.Size() - save.records
	_, err := v.blocks.PushBack(core.Block{
		Header: hdr,
		Begin:  v.recordBase + save.records,
		Count:  count,
	})
	if err != nil {
		v.rollback(save)
		return err
	}

	if v.opts.SyncOnCommit {
		start := time.Now()
		if err := v.flushFiles(); err != nil {
			v.rollback(save)
			return err
		}
		v.metrics.fsynced(start)
	}

	v.inBlock = false
	if err := v.writeManifest(); err != nil {
		// The rename may or may not have happened.
		v.failed = errors.Wrap(err, "volume state unknown after failed manifest write")
		return err
	}
	v.metrics.committed(count)
	v.pos = Position{Block: v.NumBlocks(), Record: v.NumRecords()}
	v.logger.Debug("Block committed.", "block", v.NumBlocks()-1, "records", count)
	return nil
}

// AbortBlock discards everything written since BeginBlock. The manifest is
// not touched since it never advertised the discarded data.
func (v *Volume) AbortBlock(save SaveState) error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.matches(save) {
		return core.ErrNoActiveBlock
	}
	if err := v.rollback(save); err != nil {
		return err
	}
	v.metrics.aborted()
	v.logger.Debug("Block aborted.", "block", v.NumBlocks())
	return nil
}

func (v *Volume) rollback(save SaveState) error {
	v.inBlock = false
	err := v.blocks.File().ResizeUninitialized(save.blocks)
	err = errors.CombineErrors(err, v.records.File().ResizeUninitialized(save.records))
	for i, df := range v.data {
		err = errors.CombineErrors(err, df.heap.File().ResizeUninitialized(save.data[i]))
	}
	if err != nil {
		v.failed = errors.Wrap(err, "rollback failed")
	}
	return err
}

// Write stores one wire block: a block header followed by records, each a
// record header and its payload. A payload that runs past the end of the
// block is cut at the block end; its header keeps the declared size. On any
// error nothing of the block is kept.
func (v *Volume) Write(buf []byte) (int, error) {
	if len(buf) < core.BlockHeaderSize {
		return 0, errors.Wrapf(core.ErrBadWireBlock, "%d bytes, header needs %d", len(buf), core.BlockHeaderSize)
	}
	hdr := core.DecodeBlockHeader(buf)
	size := int(hdr.BlockSize)
	if size < core.BlockHeaderSize {
		return 0, errors.Wrapf(core.ErrBadWireBlock, "block size %d smaller than its header", hdr.BlockSize)
	}
	if len(buf) < size {
		return 0, errors.Wrapf(core.ErrBadWireBlock, "incomplete block: %d of %d bytes", len(buf), size)
	}

	save, err := v.BeginBlock()
	if err != nil {
		return 0, err
	}
	cur := core.BlockHeaderSize
	for cur != size {
		if cur+core.RecordHeaderSize > size {
			v.AbortBlock(save)
			return 0, errors.Wrapf(core.ErrBadWireBlock, "record header at %d runs past block end %d", cur, size)
		}
		rh := core.DecodeRecordHeader(buf[cur:])
		start := cur + core.RecordHeaderSize
		end := start + int(rh.DataSize)
		if end > size || end < start {
			// split record, the rest follows in the next block
			end = size
		}
		if err := v.PushRecord(rh, buf[start:end]); err != nil {
			v.AbortBlock(save)
			return 0, err
		}
		cur = end
	}
	if err := v.CommitBlock(save, hdr); err != nil {
		if v.inBlock {
			v.AbortBlock(save)
		}
		return 0, err
	}
	return size, nil
}

// Reset empties the volume and rewrites the manifest. Every file is
// truncated and only the first writable data file of each size class stays
// in the manifest. Block numbers start again at zero.
func (v *Volume) Reset() error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.mode.CanWrite() {
		return errors.Wrapf(core.ErrReadOnly, "reset %s", v.dir)
	}
	if v.inBlock {
		return core.ErrBlockInProgress
	}

	if err := v.blocks.File().Truncate(); err != nil {
		return err
	}
	if err := v.records.File().Truncate(); err != nil {
		return err
	}
	v.blockBase, v.recordBase = 0, 0

	seen := make(map[uint64]bool)
	kept := v.data[:0]
	var dropped []*dataFile
	for _, df := range v.data {
		// Read-only files cannot be truncated; nothing references them
		// after the reset so they leave the manifest. Their files stay on disk.
		if df.meta.ReadOnly || seen[df.meta.BlockSize] {
			dropped = append(dropped, df)
			continue
		}
		seen[df.meta.BlockSize] = true
		if err := df.heap.File().Truncate(); err != nil {
			return err
		}
		kept = append(kept, df)
	}
	v.data = kept
	for _, df := range dropped {
		delete(v.byIdx, df.meta.Idx)
		if err := df.heap.File().Close(); err != nil {
			v.logger.Warn("Failed to close dropped data file.", "path", df.meta.Path, "error", err)
		}
	}

	if err := v.writeManifest(); err != nil {
		v.failed = errors.Wrap(err, "volume state unknown after failed manifest write")
		return err
	}
	v.GotoBegin()
	v.logger.Info("Volume reset.", "dropped_data_files", len(dropped))
	return nil
}
