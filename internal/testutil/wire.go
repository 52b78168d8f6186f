// Package testutil builds wire blocks and inspects volume directories for
// tests.
package testutil

import (
	"github.com/INLOpen/dedupstore/core"
)

// Record is one record of a wire block under construction.
type Record struct {
	FileIndex int32
	Stream    int32
	// DataSize overrides the declared size when non-zero; records split
	// across blocks declare more bytes than they carry.
	DataSize uint32
	Payload  []byte
}

// WireBlock encodes a block header followed by recs. BlockSize is set to the
// encoded length.
func WireBlock(number uint32, recs ...Record) []byte {
	size := core.BlockHeaderSize
	for _, r := range recs {
		size += core.RecordHeaderSize + len(r.Payload)
	}
	buf := make([]byte, size)
	hdr := BlockHeader(number)
	hdr.BlockSize = uint32(size)
	hdr.Encode(buf)

	off := core.BlockHeaderSize
	for _, r := range recs {
		declared := r.DataSize
		if declared == 0 {
			declared = uint32(len(r.Payload))
		}
		rh := core.RecordHeader{FileIndex: r.FileIndex, Stream: r.Stream, DataSize: declared}
		rh.Encode(buf[off:])
		off += core.RecordHeaderSize
		off += copy(buf[off:], r.Payload)
	}
	return buf
}

// BlockHeader returns a block header with recognizable session fields.
func BlockHeader(number uint32) core.BlockHeader {
	return core.BlockHeader{
		CheckSum:       0xC0FFEE00 | number&0xFF,
		BlockSize:      core.BlockHeaderSize,
		BlockNumber:    number,
		ID:             [4]byte{'B', 'B', '0', '2'},
		VolSessionID:   7,
		VolSessionTime: 1700000000,
	}
}

// Payload returns n bytes derived from seed.
func Payload(seed byte, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i*31)
	}
	return p
}
