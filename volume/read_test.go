package volume

import (
	"io"
	"testing"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/internal/testutil"
	"github.com/INLOpen/dedupstore/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitCounts commits one block per entry of counts with that many records.
func commitCounts(t *testing.T, v *Volume, counts ...int) {
	t.Helper()
	for b, n := range counts {
		payloads := make([][]byte, n)
		for i := range payloads {
			payloads[i] = testutil.Payload(byte(b*16+i), 10+i)
		}
		commit(t, v, uint32(b), payloads...)
	}
}

func TestBlockToRecordAddressing(t *testing.T) {
	v, dir := newVolume(t, testOptions())
	commitCounts(t, v, 3, 0, 5)
	require.NoError(t, v.Close())

	v, err := Open(dir, core.OpenReadOnly, testOptions())
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.GotoBlock(2))
	assert.Equal(t, Position{Block: 2, Record: 3}, v.Position())

	b := mustBlock(t, v, 2)
	assert.Equal(t, uint64(3), b.Begin)
	assert.Equal(t, uint64(8), b.End())

	buf := make([]byte, 4096)
	n, err := v.Read(buf)
	require.NoError(t, err)

	// Walk the wire bytes and count the records.
	hdr := core.DecodeBlockHeader(buf)
	assert.Equal(t, uint32(2), hdr.BlockNumber)
	off := core.BlockHeaderSize
	var streams []int32
	for off < n {
		rh := core.DecodeRecordHeader(buf[off:])
		off += core.RecordHeaderSize
		assert.Equal(t, testutil.Payload(byte(2*16+len(streams)), int(rh.DataSize)), buf[off:off+int(rh.DataSize)])
		off += int(rh.DataSize)
		streams = append(streams, rh.Stream)
	}
	assert.Equal(t, n, off)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, streams)

	assert.Equal(t, Position{Block: 3, Record: 8}, v.Position())
	assert.True(t, v.AtEnd())

	t.Run("EmptyBlock", func(t *testing.T) {
		n, err := v.ReadBlock(1, buf)
		require.NoError(t, err)
		assert.Equal(t, core.BlockHeaderSize, n)
	})
}

func TestWireRoundTrip(t *testing.T) {
	v, dir := newVolume(t, testOptions())

	blocks := [][]byte{
		testutil.WireBlock(0,
			testutil.Record{FileIndex: 1, Stream: 1, Payload: testutil.Payload(1, 100)},
			testutil.Record{FileIndex: 1, Stream: 2, Payload: testutil.Payload(2, core.DefaultDedupBlockSize)},
		),
		testutil.WireBlock(1),
		testutil.WireBlock(2,
			// split record: declares more bytes than this block carries
			testutil.Record{FileIndex: 2, Stream: -1, DataSize: 70000, Payload: testutil.Payload(3, 777)},
		),
	}
	for _, wire := range blocks {
		n, err := v.Write(wire)
		require.NoError(t, err)
		assert.Equal(t, len(wire), n)
	}
	require.NoError(t, v.Close())

	v, err := Open(dir, core.OpenReadOnly, testOptions())
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Verify())

	buf := make([]byte, 64*1024)
	for i, want := range blocks {
		n, err := v.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, want, buf[:n], "block %d", i)
	}
	_, err = v.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	recs, err := v.BlockRecords(mustBlock(t, v, 2))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(70000), recs[0].Header.DataSize)
	assert.Equal(t, uint32(777), recs[0].Size)

	size, err := v.WireSize(0)
	require.NoError(t, err)
	assert.Equal(t, len(blocks[0]), size)
}

func TestWrite_BadBlocks(t *testing.T) {
	v, _ := newVolume(t, testOptions())
	good := testutil.WireBlock(0, testutil.Record{Payload: []byte("abc")})

	testCases := []struct {
		name string
		buf  []byte
	}{
		{name: "ShorterThanHeader", buf: good[:10]},
		{name: "Incomplete", buf: good[:len(good)-1]},
		{name: "BlockSizeTooSmall", buf: func() []byte {
			b := append([]byte(nil), good...)
			b[7] = 4 // BlockSize = 4
			b[4], b[5], b[6] = 0, 0, 0
			return b
		}()},
		{name: "TruncatedRecordHeader", buf: func() []byte {
			b := testutil.WireBlock(0, testutil.Record{Payload: []byte("abc")})
			hdr := core.DecodeBlockHeader(b)
			hdr.BlockSize = core.BlockHeaderSize + 5
			hdr.Encode(b)
			return b
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Write(tc.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrBadWireBlock)
			assert.Equal(t, uint64(0), v.NumBlocks())
			assert.Equal(t, uint64(0), v.NumRecords(), "partial records must not survive")
		})
	}

	n, err := v.Write(good)
	require.NoError(t, err, "a failed write must not leave a block in progress")
	assert.Equal(t, len(good), n)
}

func TestReadBlock_Errors(t *testing.T) {
	v, dir := newVolume(t, testOptions())
	commitCounts(t, v, 2)

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := v.ReadBlock(1, make([]byte, 1024))
		assert.ErrorIs(t, err, core.ErrBlockOutOfRange)
		assert.ErrorIs(t, v.GotoBlock(1), core.ErrBlockOutOfRange)
	})

	t.Run("BufferTooSmall", func(t *testing.T) {
		size, err := v.WireSize(0)
		require.NoError(t, err)
		_, err = v.ReadBlock(0, make([]byte, size-1))
		assert.ErrorIs(t, err, core.ErrBufferTooSmall)
		n, err := v.ReadBlock(0, make([]byte, size))
		require.NoError(t, err)
		assert.Equal(t, size, n)
	})
	require.NoError(t, v.Close())

	t.Run("UnknownDataFile", func(t *testing.T) {
		m, err := manifest.Read(dir)
		require.NoError(t, err)
		// Renumber the fallback so the records point nowhere.
		m.DataFiles[1].Idx = 42
		require.NoError(t, manifest.Write(dir, m, 0))

		v, err := Open(dir, core.OpenReadOnly, testOptions())
		require.NoError(t, err)
		defer v.Close()

		_, err = v.ReadBlock(0, make([]byte, 1024))
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrUnknownDataFile)
		assert.True(t, core.IsConsistencyError(err))
		assert.ErrorIs(t, v.Verify(), core.ErrUnknownDataFile)
	})

	t.Run("PayloadPastDataFileSize", func(t *testing.T) {
		m, err := manifest.Read(dir)
		require.NoError(t, err)
		m.DataFiles[1].Idx = 1
		m.DataFiles[1].Size = 5
		require.NoError(t, manifest.Write(dir, m, 0))

		v, err := Open(dir, core.OpenReadOnly, testOptions())
		require.NoError(t, err)
		defer v.Close()

		_, err = v.ReadBlock(0, make([]byte, 1024))
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrRangeExceeded)
		assert.ErrorIs(t, v.Verify(), core.ErrRangeExceeded)
	})
}

func TestWriteOnlyCannotRead(t *testing.T) {
	_, dir := newVolumeClosed(t)
	v, err := Open(dir, core.OpenWriteOnly, testOptions())
	require.NoError(t, err)
	defer v.Close()

	_, err = v.ReadBlock(0, make([]byte, 1024))
	assert.ErrorIs(t, err, core.ErrWriteOnly)

	commit(t, v, 1, []byte("appended"))
	assert.Equal(t, uint64(2), v.NumBlocks())
}

func TestGotoBeginEnd(t *testing.T) {
	v, _ := newVolume(t, testOptions())
	assert.Equal(t, Position{}, v.Position())
	assert.True(t, v.AtEnd())

	commitCounts(t, v, 2, 3)
	assert.Equal(t, Position{Block: 2, Record: 5}, v.Position(), "commit leaves the position at the end")

	v.GotoBegin()
	assert.Equal(t, Position{Block: 0, Record: 0}, v.Position())
	assert.False(t, v.AtEnd())

	require.NoError(t, v.GotoBlock(1))
	assert.Equal(t, Position{Block: 1, Record: 2}, v.Position())

	v.GotoEnd()
	assert.Equal(t, Position{Block: 2, Record: 5}, v.Position())
	_, err := v.Read(make([]byte, 1024))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReset(t *testing.T) {
	v, dir := newVolume(t, testOptions())
	commitCounts(t, v, 2, 3)

	require.NoError(t, v.Reset())
	assert.Equal(t, uint64(0), v.NumBlocks())
	assert.Equal(t, uint64(0), v.NumRecords())
	assert.Equal(t, Position{}, v.Position())
	for _, fs := range v.Layout() {
		assert.Equal(t, fs.Start, fs.End, fs.Path)
	}

	commitCounts(t, v, 1)
	require.NoError(t, v.Close())

	m := testutil.RequireVolumeFiles(t, dir)
	assert.Equal(t, uint64(1), m.BlockFiles[0].End)
	assert.Equal(t, uint64(1), m.RecordFiles[0].End)
}

func TestReset_DropsDuplicateSizeClasses(t *testing.T) {
	_, dir := newVolumeClosed(t)

	m, err := manifest.Read(dir)
	require.NoError(t, err)
	m.DataFiles = append(m.DataFiles,
		manifest.DataFile{Path: "second.data", BlockSize: core.DefaultDedupBlockSize, Idx: m.NextDataIdx()},
		manifest.DataFile{Path: "archive.data", BlockSize: 4096, Idx: m.NextDataIdx() + 1, ReadOnly: true},
	)
	require.NoError(t, manifest.Write(dir, m, 0))
	for _, p := range []string{"second.data", "archive.data"} {
		require.NoError(t, writeEmpty(dir, p))
	}

	v, err := Open(dir, core.OpenReadWrite, testOptions())
	require.NoError(t, err)
	defer v.Close()
	require.Len(t, v.Layout(), 6)

	require.NoError(t, v.Reset())
	after := v.Manifest()
	require.Len(t, after.DataFiles, 2)
	assert.Equal(t, core.DefaultAlignedDataName, after.DataFiles[0].Path)
	assert.Equal(t, core.DefaultUnalignedDataName, after.DataFiles[1].Path)

	files, err := testutil.ListVolumeFiles(dir)
	require.NoError(t, err)
	assert.Contains(t, files, "second.data", "dropped files stay on disk")
}
