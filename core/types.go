package core

import (
	"encoding/binary"
	"fmt"
)

// OpenMode selects how a volume and its files are opened.
type OpenMode byte

const (
	CreateReadWrite OpenMode = iota
	OpenReadWrite
	OpenReadOnly
	OpenWriteOnly
)

// String returns the string representation of the OpenMode.
func (m OpenMode) String() string {
	switch m {
	case CreateReadWrite:
		return "create_read_write"
	case OpenReadWrite:
		return "open_read_write"
	case OpenReadOnly:
		return "open_read_only"
	case OpenWriteOnly:
		return "open_write_only"
	default:
		return fmt.Sprintf("open_mode(%d)", byte(m))
	}
}

// CanWrite reports whether files opened in this mode accept appends.
func (m OpenMode) CanWrite() bool {
	return m != OpenReadOnly
}

// CanRead reports whether files opened in this mode can be read.
func (m OpenMode) CanRead() bool {
	return m != OpenWriteOnly
}

// BlockHeader is the header of one block of the backup wire protocol.
type BlockHeader struct {
	CheckSum       uint32
	BlockSize      uint32 // including the header itself
	BlockNumber    uint32
	ID             [4]byte
	VolSessionID   uint32
	VolSessionTime uint32
}

// Encode writes h into dst, which must hold BlockHeaderSize bytes.
func (h *BlockHeader) Encode(dst []byte) {
	_ = dst[BlockHeaderSize-1]
	binary.BigEndian.PutUint32(dst[0:4], h.CheckSum)
	binary.BigEndian.PutUint32(dst[4:8], h.BlockSize)
	binary.BigEndian.PutUint32(dst[8:12], h.BlockNumber)
	copy(dst[12:16], h.ID[:])
	binary.BigEndian.PutUint32(dst[16:20], h.VolSessionID)
	binary.BigEndian.PutUint32(dst[20:24], h.VolSessionTime)
}

// DecodeBlockHeader reads a BlockHeader from src.
func DecodeBlockHeader(src []byte) BlockHeader {
	_ = src[BlockHeaderSize-1]
	var h BlockHeader
	h.CheckSum = binary.BigEndian.Uint32(src[0:4])
	h.BlockSize = binary.BigEndian.Uint32(src[4:8])
	h.BlockNumber = binary.BigEndian.Uint32(src[8:12])
	copy(h.ID[:], src[12:16])
	h.VolSessionID = binary.BigEndian.Uint32(src[16:20])
	h.VolSessionTime = binary.BigEndian.Uint32(src[20:24])
	return h
}

// RecordHeader is the header preceding each record payload on the wire.
type RecordHeader struct {
	FileIndex int32
	// Stream is negative for continuation records.
	Stream   int32
	DataSize uint32 // declared payload size
}

// Encode writes h into dst, which must hold RecordHeaderSize bytes.
func (h *RecordHeader) Encode(dst []byte) {
	_ = dst[RecordHeaderSize-1]
	binary.BigEndian.PutUint32(dst[0:4], uint32(h.FileIndex))
	binary.BigEndian.PutUint32(dst[4:8], uint32(h.Stream))
	binary.BigEndian.PutUint32(dst[8:12], h.DataSize)
}

// DecodeRecordHeader reads a RecordHeader from src.
func DecodeRecordHeader(src []byte) RecordHeader {
	_ = src[RecordHeaderSize-1]
	return RecordHeader{
		FileIndex: int32(binary.BigEndian.Uint32(src[0:4])),
		Stream:    int32(binary.BigEndian.Uint32(src[4:8])),
		DataSize:  binary.BigEndian.Uint32(src[8:12]),
	}
}

// Block is one entry of the block file: the wire header plus the range of
// record-file entries that belong to it.
type Block struct {
	Header BlockHeader
	Begin  uint64 // first index into the record file
	Count  uint64 // number of records
}

// End returns the record index one past the block's last record.
func (b Block) End() uint64 { return b.Begin + b.Count }

// Record is one entry of the record file: the wire header plus the location
// of its payload.
type Record struct {
	Header  RecordHeader
	Size    uint32 // bytes actually stored, may be less than Header.DataSize
	Begin   uint64 // byte offset inside the data file
	FileIdx uint64 // Idx of the data file holding the payload
}

// End returns the byte offset one past the payload.
func (r Record) End() uint64 { return r.Begin + uint64(r.Size) }

// BlockCodec encodes Block entries for the block file.
type BlockCodec struct{}

func (BlockCodec) Size() int { return BlockEntrySize }

func (BlockCodec) Encode(dst []byte, b Block) {
	b.Header.Encode(dst[0:BlockHeaderSize])
	binary.BigEndian.PutUint64(dst[24:32], b.Begin)
	binary.BigEndian.PutUint64(dst[32:40], b.Count)
}

func (BlockCodec) Decode(src []byte) Block {
	return Block{
		Header: DecodeBlockHeader(src[0:BlockHeaderSize]),
		Begin:  binary.BigEndian.Uint64(src[24:32]),
		Count:  binary.BigEndian.Uint64(src[32:40]),
	}
}

// RecordCodec encodes Record entries for the record file.
type RecordCodec struct{}

func (RecordCodec) Size() int { return RecordEntrySize }

func (RecordCodec) Encode(dst []byte, r Record) {
	r.Header.Encode(dst[0:RecordHeaderSize])
	binary.BigEndian.PutUint32(dst[12:16], r.Size)
	binary.BigEndian.PutUint64(dst[16:24], r.Begin)
	binary.BigEndian.PutUint64(dst[24:32], r.FileIdx)
}

func (RecordCodec) Decode(src []byte) Record {
	return Record{
		Header:  DecodeRecordHeader(src[0:RecordHeaderSize]),
		Size:    binary.BigEndian.Uint32(src[12:16]),
		Begin:   binary.BigEndian.Uint64(src[16:24]),
		FileIdx: binary.BigEndian.Uint64(src[24:32]),
	}
}
