package volume

import (
	"testing"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/internal/testutil"
	"github.com/INLOpen/dedupstore/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_FlushFailureRollsBack(t *testing.T) {
	failSync := testutil.FailSync(t)
	opts := testOptions()
	opts.SyncOnCommit = true
	v, dir := newVolume(t, opts)
	commitCounts(t, v, 2)
	before, err := manifest.Read(dir)
	require.NoError(t, err)

	failSync.Store(true)
	save, err := v.BeginBlock()
	require.NoError(t, err)
	require.NoError(t, v.PushRecord(core.RecordHeader{Stream: 1, DataSize: 5}, []byte("hello")))
	err = v.CommitBlock(save, testutil.BlockHeader(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.True(t, core.IsIOError(err))

	assert.True(t, v.IsOK(), "a rolled back block leaves the volume usable")
	assert.Equal(t, uint64(1), v.NumBlocks())
	assert.Equal(t, uint64(2), v.NumRecords())
	assert.ErrorIs(t, v.AbortBlock(save), core.ErrNoActiveBlock)

	t.Run("WriteAbortsOnCommitFailure", func(t *testing.T) {
		_, err := v.Write(testutil.WireBlock(1, testutil.Record{Stream: 1, Payload: testutil.Payload(3, 40)}))
		require.ErrorIs(t, err, testutil.ErrInjected)
		assert.True(t, v.IsOK())
		assert.Equal(t, uint64(1), v.NumBlocks())
		assert.Equal(t, uint64(2), v.NumRecords())
	})

	after, err := manifest.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	failSync.Store(false)
	commit(t, v, 1, []byte("again"))
	require.NoError(t, v.Close())

	v, err = Open(dir, core.OpenReadOnly, testOptions())
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, uint64(2), v.NumBlocks())
	assert.Equal(t, uint64(3), v.NumRecords())
	require.NoError(t, v.Verify())
}

func TestCommit_ManifestFailureIsSticky(t *testing.T) {
	v, dir := newVolume(t, testOptions())
	commitCounts(t, v, 1)
	before, err := manifest.Read(dir)
	require.NoError(t, err)

	failRename := testutil.FailRename(t)
	save, err := v.BeginBlock()
	require.NoError(t, err)
	require.NoError(t, v.PushRecord(core.RecordHeader{Stream: 1, DataSize: 3}, []byte("abc")))
	err = v.CommitBlock(save, testutil.BlockHeader(1))
	require.ErrorIs(t, err, testutil.ErrInjected)

	assert.False(t, v.IsOK())
	assert.ErrorIs(t, v.Err(), testutil.ErrInjected)
	_, err = v.BeginBlock()
	assert.ErrorIs(t, err, testutil.ErrInjected)
	_, err = v.ReadBlock(0, make([]byte, 1024))
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.ErrorIs(t, v.Reset(), testutil.ErrInjected)

	failRename.Store(false)
	after, err := manifest.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after, "the manifest on disk still describes the last good commit")

	v.Close()
	assert.ErrorIs(t, v.Err(), core.ErrClosed)

	v, err = Open(dir, core.OpenReadOnly, testOptions())
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, uint64(1), v.NumBlocks())
	assert.Equal(t, uint64(1), v.NumRecords())
	require.NoError(t, v.Verify())
}

func TestCheckPayloadSize(t *testing.T) {
	require.NoError(t, checkPayloadSize(0))
	require.NoError(t, checkPayloadSize(1<<32-1))
	err := checkPayloadSize(1 << 32)
	require.Error(t, err)
	assert.True(t, core.IsPreconditionError(err))
}
