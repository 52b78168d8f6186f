package core

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHeader_Layout(t *testing.T) {
	h := BlockHeader{
		CheckSum:       0x01020304,
		BlockSize:      0x00010000,
		BlockNumber:    7,
		ID:             [4]byte{'B', 'B', '0', '2'},
		VolSessionID:   0xAABBCCDD,
		VolSessionTime: 1,
	}
	buf := make([]byte, BlockHeaderSize)
	h.Encode(buf)

	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x07,
		'B', 'B', '0', '2',
		0xAA, 0xBB, 0xCC, 0xDD,
		0x00, 0x00, 0x00, 0x01,
	}
	assert.Equal(t, want, buf)
	assert.Equal(t, h, DecodeBlockHeader(buf))
}

func TestRecordHeader_NegativeStream(t *testing.T) {
	h := RecordHeader{FileIndex: 3, Stream: -2, DataSize: 512}
	buf := make([]byte, RecordHeaderSize)
	h.Encode(buf)

	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFE}, buf[4:8])
	assert.Equal(t, h, DecodeRecordHeader(buf))
}

func TestEntryCodecs(t *testing.T) {
	t.Run("block", func(t *testing.T) {
		var c BlockCodec
		require.Equal(t, 40, c.Size())
		b := Block{Header: BlockHeader{BlockNumber: 9, BlockSize: 100}, Begin: 1 << 40, Count: 3}
		buf := make([]byte, c.Size())
		c.Encode(buf, b)
		assert.Equal(t, b, c.Decode(buf))
		assert.Equal(t, uint64(1<<40+3), b.End())
	})
	t.Run("record", func(t *testing.T) {
		var c RecordCodec
		require.Equal(t, 32, c.Size())
		r := Record{
			Header:  RecordHeader{FileIndex: 1, Stream: -1, DataSize: 4096},
			Size:    1000,
			Begin:   123456789,
			FileIdx: 2,
		}
		buf := make([]byte, c.Size())
		c.Encode(buf, r)
		assert.Equal(t, r, c.Decode(buf))
		assert.Equal(t, uint64(123456789+1000), r.End())
	})
}

func TestOpenMode(t *testing.T) {
	testCases := []struct {
		mode     OpenMode
		name     string
		canRead  bool
		canWrite bool
	}{
		{CreateReadWrite, "create_read_write", true, true},
		{OpenReadWrite, "open_read_write", true, true},
		{OpenReadOnly, "open_read_only", true, false},
		{OpenWriteOnly, "open_write_only", false, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.mode.String())
			assert.Equal(t, tc.canRead, tc.mode.CanRead())
			assert.Equal(t, tc.canWrite, tc.mode.CanWrite())
		})
	}
	assert.Equal(t, "open_mode(9)", OpenMode(9).String())
}

func TestErrorClasses(t *testing.T) {
	assert.True(t, IsFormatError(errors.Wrap(ErrBadChecksum, "config")))
	assert.True(t, IsConsistencyError(ErrFileTooShort))
	assert.True(t, IsPreconditionError(ErrBlockOutOfRange))
	assert.False(t, IsPreconditionError(ErrBadMagic))

	err := IOError(errors.New("no space left on device"), "write", "/vol/aligned.data")
	assert.True(t, IsIOError(err))
	assert.Contains(t, err.Error(), "write /vol/aligned.data")
	assert.NoError(t, IOError(nil, "write", "x"))
}

func TestManifestPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("vol", "config"), ManifestPath("vol"))
	assert.Equal(t, filepath.Join("vol", "config.tmp"), ManifestTempPath("vol"))
}
