package manifest

import (
	"encoding/binary"
	"testing"

	"github.com/INLOpen/dedupstore/core"
	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Info:        CurrentInfo(),
		BlockFiles:  []IndexFile{{Path: "blocks", Start: 0, End: 12, Idx: 0}},
		RecordFiles: []IndexFile{{Path: "idx/records", Start: 2, End: 250, Idx: 7}},
		DataFiles: []DataFile{
			{Path: "aligned.data", Size: 1 << 33, BlockSize: 16384, Idx: 0},
			{Path: "old.data", Size: 4096, BlockSize: 4096, Idx: 3, ReadOnly: true},
			{Path: "unaligned.data", Size: 12345, BlockSize: 1, Idx: 1},
		},
	}
}

// resign recomputes the checksum after a test modified the body.
func resign(buf []byte) {
	binary.BigEndian.PutUint64(buf[40:48], xxhash.Sum64(buf[HeaderSize:]))
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		m    *Manifest
	}{
		{name: "Default", m: Default(core.DefaultDedupBlockSize)},
		{name: "DefaultAnySizeOnly", m: Default(core.AnySize)},
		{name: "Populated", m: sampleManifest()},
		{name: "UTF8Paths", m: &Manifest{
			Info:        CurrentInfo(),
			BlockFiles:  []IndexFile{{Path: "blöcke"}},
			RecordFiles: []IndexFile{{Path: "einträge", End: 1}},
			DataFiles:   []DataFile{{Path: "daten/größe-1", BlockSize: 1, Idx: 9}},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tc.m))
			require.NoError(t, err)
			assert.Equal(t, tc.m, decoded)
		})
	}
}

func TestEncode_Layout(t *testing.T) {
	buf := Encode(Default(16384))
	be := binary.BigEndian

	assert.Equal(t, "DDCF", string(buf[0:4]))
	assert.Equal(t, uint32(1), be.Uint32(buf[4:8]))
	assert.Equal(t, uint32(core.BlockHeaderSize), be.Uint32(buf[8:12]))
	assert.Equal(t, uint32(core.RecordHeaderSize), be.Uint32(buf[12:16]))
	assert.Equal(t, uint32(1), be.Uint32(buf[24:28]), "num blockfiles")
	assert.Equal(t, uint32(1), be.Uint32(buf[28:32]), "num recordfiles")
	assert.Equal(t, uint32(2), be.Uint32(buf[32:36]), "num datafiles")

	strSize := len("blocks") + len("records") + len("aligned.data") + len("unaligned.data")
	assert.Equal(t, uint32(strSize), be.Uint32(buf[36:40]))
	assert.Len(t, buf, HeaderSize+strSize+4*EntrySize)
	assert.Equal(t, "blocksrecordsaligned.dataunaligned.data", string(buf[HeaderSize:HeaderSize+strSize]))
}

func TestDecode_Errors(t *testing.T) {
	valid := Encode(sampleManifest())

	testCases := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
		wantMsg string
	}{
		{
			name:    "EmptyBuffer",
			mutate:  func(b []byte) []byte { return nil },
			wantErr: core.ErrConfigTooSmall,
		},
		{
			name:    "TruncatedHeader",
			mutate:  func(b []byte) []byte { return b[:HeaderSize-1] },
			wantErr: core.ErrConfigTooSmall,
		},
		{
			name:    "TruncatedBody",
			mutate:  func(b []byte) []byte { return b[:len(b)-1] },
			wantErr: core.ErrConfigTooSmall,
		},
		{
			name:    "TrailingBytes",
			mutate:  func(b []byte) []byte { return append(b, 0) },
			wantErr: core.ErrConfigTooBig,
		},
		{
			name: "BadMagic",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[0:4], 0xDEADBEEF)
				return b
			},
			wantErr: core.ErrBadMagic,
		},
		{
			name: "NewerVersion",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[4:8], 2)
				return b
			},
			wantErr: core.ErrBadVersion,
		},
		{
			name: "TwoBlockFiles",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[24:28], 2)
				return b
			},
			wantErr: core.ErrBadFileCount,
			wantMsg: "num blockfiles",
		},
		{
			name: "NoRecordFiles",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[28:32], 0)
				return b
			},
			wantErr: core.ErrBadFileCount,
			wantMsg: "num recordfiles",
		},
		{
			name: "NoDataFiles",
			mutate: func(b []byte) []byte {
				binary.BigEndian.PutUint32(b[32:36], 0)
				return b
			},
			wantErr: core.ErrBadFileCount,
			wantMsg: "num datafiles",
		},
		{
			name: "CorruptBody",
			mutate: func(b []byte) []byte {
				b[len(b)-5] ^= 0xFF
				return b
			},
			wantErr: core.ErrBadChecksum,
		},
		{
			name: "DanglingStringReference",
			mutate: func(b []byte) []byte {
				stringSize := binary.BigEndian.Uint32(b[36:40])
				firstEntry := b[HeaderSize+stringSize:]
				binary.BigEndian.PutUint32(firstEntry[0:4], stringSize-2)
				binary.BigEndian.PutUint32(firstEntry[4:8], 3)
				resign(b)
				return b
			},
			wantErr: core.ErrBadStringRef,
			wantMsg: "string area too small",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := tc.mutate(append([]byte(nil), valid...))
			m, err := Decode(buf)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.True(t, core.IsFormatError(err))
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestDecode_TooSmallAndTooBigAreDistinct(t *testing.T) {
	valid := Encode(Default(16384))

	_, small := Decode(valid[:len(valid)-EntrySize])
	_, big := Decode(append(append([]byte(nil), valid...), make([]byte, EntrySize)...))

	require.Error(t, small)
	require.Error(t, big)
	assert.ErrorIs(t, small, core.ErrConfigTooSmall)
	assert.NotErrorIs(t, small, core.ErrConfigTooBig)
	assert.ErrorIs(t, big, core.ErrConfigTooBig)
	assert.NotErrorIs(t, big, core.ErrConfigTooSmall)
	assert.Contains(t, small.Error(), "too small")
	assert.Contains(t, big.Error(), "too big")
}
