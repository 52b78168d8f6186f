package manifest

import (
	"encoding/binary"

	"github.com/INLOpen/dedupstore/core"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

const (
	// HeaderSize is the encoded size of the manifest header.
	HeaderSize = 48
	// EntrySize is the encoded size of one file entry.
	EntrySize = 32

	flagReadOnly uint32 = 1 << 0
)

type header struct {
	magic          uint32
	version        uint32
	info           Info
	numBlockFiles  uint32
	numRecordFiles uint32
	numDataFiles   uint32
	stringSize     uint32
	checksum       uint64
}

func (h *header) encode(dst []byte) {
	be := binary.BigEndian
	be.PutUint32(dst[0:4], h.magic)
	be.PutUint32(dst[4:8], h.version)
	be.PutUint32(dst[8:12], h.info.BlockHeaderSize)
	be.PutUint32(dst[12:16], h.info.RecordHeaderSize)
	be.PutUint32(dst[16:20], h.info.DedupBlockHeaderSize)
	be.PutUint32(dst[20:24], h.info.DedupRecordHeaderSize)
	be.PutUint32(dst[24:28], h.numBlockFiles)
	be.PutUint32(dst[28:32], h.numRecordFiles)
	be.PutUint32(dst[32:36], h.numDataFiles)
	be.PutUint32(dst[36:40], h.stringSize)
	be.PutUint64(dst[40:48], h.checksum)
}

func decodeHeader(src []byte) header {
	be := binary.BigEndian
	return header{
		magic:   be.Uint32(src[0:4]),
		version: be.Uint32(src[4:8]),
		info: Info{
			BlockHeaderSize:       be.Uint32(src[8:12]),
			RecordHeaderSize:      be.Uint32(src[12:16]),
			DedupBlockHeaderSize:  be.Uint32(src[16:20]),
			DedupRecordHeaderSize: be.Uint32(src[20:24]),
		},
		numBlockFiles:  be.Uint32(src[24:28]),
		numRecordFiles: be.Uint32(src[28:32]),
		numDataFiles:   be.Uint32(src[32:36]),
		stringSize:     be.Uint32(src[36:40]),
		checksum:       be.Uint64(src[40:48]),
	}
}

// Encode serializes m. It does not validate m; Write does.
func Encode(m *Manifest) []byte {
	stringSize := 0
	for _, f := range m.BlockFiles {
		stringSize += len(f.Path)
	}
	for _, f := range m.RecordFiles {
		stringSize += len(f.Path)
	}
	for _, f := range m.DataFiles {
		stringSize += len(f.Path)
	}
	numEntries := len(m.BlockFiles) + len(m.RecordFiles) + len(m.DataFiles)
	buf := make([]byte, HeaderSize+stringSize+numEntries*EntrySize)

	be := binary.BigEndian
	strOff := 0
	strings := buf[HeaderSize : HeaderSize+stringSize]
	entry := buf[HeaderSize+stringSize:]
	putPath := func(dst []byte, path string) {
		be.PutUint32(dst[0:4], uint32(strOff))
		be.PutUint32(dst[4:8], uint32(len(path)))
		strOff += copy(strings[strOff:], path)
	}
	putIndex := func(f IndexFile) {
		putPath(entry, f.Path)
		be.PutUint64(entry[8:16], f.Start)
		be.PutUint64(entry[16:24], f.End)
		be.PutUint32(entry[24:28], f.Idx)
		be.PutUint32(entry[28:32], 0)
		entry = entry[EntrySize:]
	}
	for _, f := range m.BlockFiles {
		putIndex(f)
	}
	for _, f := range m.RecordFiles {
		putIndex(f)
	}
	for _, f := range m.DataFiles {
		putPath(entry, f.Path)
		be.PutUint64(entry[8:16], f.Size)
		be.PutUint64(entry[16:24], f.BlockSize)
		be.PutUint32(entry[24:28], f.Idx)
		var flags uint32
		if f.ReadOnly {
			flags |= flagReadOnly
		}
		be.PutUint32(entry[28:32], flags)
		entry = entry[EntrySize:]
	}

	h := header{
		magic:          core.ManifestMagicNumber,
		version:        core.ManifestVersion,
		info:           m.Info,
		numBlockFiles:  uint32(len(m.BlockFiles)),
		numRecordFiles: uint32(len(m.RecordFiles)),
		numDataFiles:   uint32(len(m.DataFiles)),
		stringSize:     uint32(stringSize),
		checksum:       xxhash.Sum64(buf[HeaderSize:]),
	}
	h.encode(buf[:HeaderSize])
	return buf
}

// Decode parses a manifest. Every check fails with a distinct error: a
// buffer that ends early is ErrConfigTooSmall, one with trailing bytes is
// ErrConfigTooBig, and wrong file counts name the offending role.
func Decode(data []byte) (*Manifest, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(core.ErrConfigTooSmall, "%d bytes, header needs %d", len(data), HeaderSize)
	}
	h := decodeHeader(data)
	if h.magic != core.ManifestMagicNumber {
		return nil, errors.Wrapf(core.ErrBadMagic, "got %#x, want %#x", h.magic, core.ManifestMagicNumber)
	}
	if h.version != core.ManifestVersion {
		return nil, errors.Wrapf(core.ErrBadVersion, "got %d, want %d", h.version, core.ManifestVersion)
	}
	if h.numBlockFiles != 1 {
		return nil, errors.Wrapf(core.ErrBadFileCount, "num blockfiles != 1 (got %d)", h.numBlockFiles)
	}
	if h.numRecordFiles != 1 {
		return nil, errors.Wrapf(core.ErrBadFileCount, "num recordfiles != 1 (got %d)", h.numRecordFiles)
	}
	if h.numDataFiles < 1 {
		return nil, errors.Wrapf(core.ErrBadFileCount, "num datafiles < 1 (got %d)", h.numDataFiles)
	}

	numEntries := uint64(h.numBlockFiles) + uint64(h.numRecordFiles) + uint64(h.numDataFiles)
	want := uint64(HeaderSize) + uint64(h.stringSize) + numEntries*EntrySize
	if uint64(len(data)) < want {
		return nil, errors.Wrapf(core.ErrConfigTooSmall, "%d bytes, declared content needs %d", len(data), want)
	}
	if uint64(len(data)) > want {
		return nil, errors.Wrapf(core.ErrConfigTooBig, "%d bytes, declared content needs %d", len(data), want)
	}
	if sum := xxhash.Sum64(data[HeaderSize:]); sum != h.checksum {
		return nil, errors.Wrapf(core.ErrBadChecksum, "got %#x, want %#x", sum, h.checksum)
	}

	strings := data[HeaderSize : HeaderSize+h.stringSize]
	entry := data[HeaderSize+h.stringSize:]
	be := binary.BigEndian
	readPath := func() (string, error) {
		off := be.Uint32(entry[0:4])
		n := be.Uint32(entry[4:8])
		if uint64(off)+uint64(n) > uint64(len(strings)) {
			return "", errors.Wrapf(core.ErrBadStringRef, "path [%d, %d) outside %d bytes", off, uint64(off)+uint64(n), len(strings))
		}
		return string(strings[off : off+n]), nil
	}
	readIndex := func(count uint32) ([]IndexFile, error) {
		files := make([]IndexFile, 0, count)
		for i := uint32(0); i < count; i++ {
			path, err := readPath()
			if err != nil {
				return nil, err
			}
			files = append(files, IndexFile{
				Path:  path,
				Start: be.Uint64(entry[8:16]),
				End:   be.Uint64(entry[16:24]),
				Idx:   be.Uint32(entry[24:28]),
			})
			entry = entry[EntrySize:]
		}
		return files, nil
	}

	m := &Manifest{Info: h.info}
	var err error
	if m.BlockFiles, err = readIndex(h.numBlockFiles); err != nil {
		return nil, err
	}
	if m.RecordFiles, err = readIndex(h.numRecordFiles); err != nil {
		return nil, err
	}
	m.DataFiles = make([]DataFile, 0, h.numDataFiles)
	for i := uint32(0); i < h.numDataFiles; i++ {
		path, err := readPath()
		if err != nil {
			return nil, err
		}
		m.DataFiles = append(m.DataFiles, DataFile{
			Path:      path,
			Size:      be.Uint64(entry[8:16]),
			BlockSize: be.Uint64(entry[16:24]),
			Idx:       be.Uint32(entry[24:28]),
			ReadOnly:  be.Uint32(entry[28:32])&flagReadOnly != 0,
		})
		entry = entry[EntrySize:]
	}
	return m, nil
}
