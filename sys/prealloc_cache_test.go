package sys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetPreallocState(t *testing.T) {
	t.Helper()
	preallocCache.Range(func(k, _ any) bool {
		preallocCache.Delete(k)
		return true
	})
	preallocCacheHits.Store(0)
	preallocCacheMisses.Store(0)
	t.Cleanup(func() {
		preallocCache.Range(func(k, _ any) bool {
			preallocCache.Delete(k)
			return true
		})
	})
}

func TestPreallocCache_PerDevice(t *testing.T) {
	resetPreallocState(t)
	const ext4, nfs = uint64(0x801), uint64(0x2a)

	_, found := preallocCacheLoad(ext4)
	assert.False(t, found)

	preallocCacheStore(ext4, true)
	preallocCacheStore(nfs, false)

	allowed, found := preallocCacheLoad(ext4)
	assert.True(t, found)
	assert.True(t, allowed)
	allowed, found = preallocCacheLoad(nfs)
	assert.True(t, found)
	assert.False(t, allowed)

	// a later probe may flip the decision, e.g. after fallocate returned EOPNOTSUPP
	preallocCacheStore(ext4, false)
	allowed, _ = preallocCacheLoad(ext4)
	assert.False(t, allowed)
}

func TestPreallocCache_Counters(t *testing.T) {
	resetPreallocState(t)

	preallocCacheMiss()
	preallocCacheHit()
	preallocCacheHit()
	hits, misses := PreallocCacheStats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)

	ok, failed, unsupported := PreallocSuccessCount(), PreallocFailureCount(), PreallocUnsupportedCount()
	preallocSuccessInc()
	preallocFailureInc()
	preallocUnsupportedInc()
	preallocUnsupportedInc()
	assert.Equal(t, ok+1, PreallocSuccessCount())
	assert.Equal(t, failed+1, PreallocFailureCount())
	assert.Equal(t, unsupported+2, PreallocUnsupportedCount())
}
