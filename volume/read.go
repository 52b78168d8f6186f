package volume

import (
	"io"

	"github.com/INLOpen/dedupstore/core"
	"github.com/cockroachdb/errors"
)

// Block returns the stored entry of block n.
func (v *Volume) Block(n uint64) (core.Block, error) {
	if err := v.check(); err != nil {
		return core.Block{}, err
	}
	if n < v.blockBase || n >= v.NumBlocks() {
		return core.Block{}, errors.Wrapf(core.ErrBlockOutOfRange, "block %d not in [%d, %d)", n, v.blockBase, v.NumBlocks())
	}
	return v.blocks.At(n - v.blockBase)
}

// BlockRecords returns the record entries of b.
func (v *Volume) BlockRecords(b core.Block) ([]core.Record, error) {
	if b.Begin < v.recordBase {
		return nil, errors.Wrapf(core.ErrRangeExceeded, "records at %d start before %d", b.Begin, v.recordBase)
	}
	if b.End() < b.Begin || b.End() > v.NumRecords() {
		return nil, errors.Wrapf(core.ErrRangeExceeded, "%d records at %d, record file ends at %d",
			b.Count, b.Begin, v.NumRecords())
	}
	return v.records.ReadAt(b.Begin-v.recordBase, b.Count)
}

// WireSize returns the number of bytes ReadBlock writes for block n.
func (v *Volume) WireSize(n uint64) (int, error) {
	b, err := v.Block(n)
	if err != nil {
		return 0, err
	}
	recs, err := v.BlockRecords(b)
	if err != nil {
		return 0, err
	}
	return wireSize(recs), nil
}

func wireSize(recs []core.Record) int {
	size := core.BlockHeaderSize
	for _, r := range recs {
		size += core.RecordHeaderSize + int(r.Size)
	}
	return size
}

// ReadBlock writes block n to buf as a wire block, the exact bytes Write was
// given for it, and returns the number of bytes written. It fails if buf is
// too small, if a record names a data file the volume does not have, or if a
// payload lies outside its data file's logical size.
func (v *Volume) ReadBlock(n uint64, buf []byte) (int, error) {
	if !v.mode.CanRead() {
		return 0, errors.Wrapf(core.ErrWriteOnly, "read block %d", n)
	}
	b, err := v.Block(n)
	if err != nil {
		return 0, err
	}
	recs, err := v.BlockRecords(b)
	if err != nil {
		return 0, err
	}
	if need := wireSize(recs); len(buf) < need {
		return 0, errors.Wrapf(core.ErrBufferTooSmall, "block %d needs %d bytes, buffer has %d", n, need, len(buf))
	}

	b.Header.Encode(buf)
	off := core.BlockHeaderSize
	payload := 0
	for i, r := range recs {
		df, ok := v.byIdx[uint32(r.FileIdx)]
		if !ok || uint64(df.meta.Idx) != r.FileIdx {
			return 0, errors.Wrapf(core.ErrUnknownDataFile, "record %d of block %d: data file %d", b.Begin+uint64(i), n, r.FileIdx)
		}
		r.Header.Encode(buf[off:])
		off += core.RecordHeaderSize
		if err := df.heap.ReadAt(r.Begin, buf[off:off+int(r.Size)]); err != nil {
			return 0, errors.Wrapf(err, "record %d of block %d", b.Begin+uint64(i), n)
		}
		off += int(r.Size)
		payload += int(r.Size)
	}
	v.metrics.read(payload)
	return off, nil
}

// Read reads the block at the current position into buf and moves to the
// next block. It returns io.EOF at the end of the volume.
func (v *Volume) Read(buf []byte) (int, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	if v.pos.Block >= v.NumBlocks() {
		return 0, io.EOF
	}
	n, err := v.ReadBlock(v.pos.Block, buf)
	if err != nil {
		return 0, err
	}
	b, err := v.blocks.At(v.pos.Block - v.blockBase)
	if err != nil {
		return 0, err
	}
	v.pos = Position{Block: v.pos.Block + 1, Record: b.End()}
	return n, nil
}

// Position returns the current read position.
func (v *Volume) Position() Position { return v.pos }

// AtEnd reports whether the position is past the last committed block.
func (v *Volume) AtEnd() bool { return v.pos.Block >= v.NumBlocks() }

// GotoBlock moves to block n, which must be a committed block.
func (v *Volume) GotoBlock(n uint64) error {
	b, err := v.Block(n)
	if err != nil {
		return err
	}
	v.pos = Position{Block: n, Record: b.Begin}
	return nil
}

// GotoBegin moves to the first block.
func (v *Volume) GotoBegin() {
	v.pos = Position{Block: v.blockBase, Record: v.recordBase}
}

// GotoEnd moves past the last committed block.
func (v *Volume) GotoEnd() {
	v.pos = Position{Block: v.NumBlocks(), Record: v.NumRecords()}
}
