package sys

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPreallocNotSupported means the file system cannot reserve space; the
// caller grows the file with Truncate instead.
var ErrPreallocNotSupported = errors.New("preallocation not supported")

// preallocCache caches preallocation capability per device id
// (uint64 -> bool, true = allowed). Platform code goes through the helpers
// below instead of touching the map or counters directly.
var preallocCache sync.Map

var preallocCacheHits atomic.Uint64
var preallocCacheMisses atomic.Uint64
var preallocSuccesses atomic.Uint64
var preallocFailures atomic.Uint64
var preallocUnsupported atomic.Uint64

// preallocCacheLoad returns (allowed, found).
func preallocCacheLoad(dev uint64) (allowed bool, found bool) {
	if v, ok := preallocCache.Load(dev); ok {
		if b, ok2 := v.(bool); ok2 {
			return b, true
		}
	}
	return false, false
}

func preallocCacheStore(dev uint64, allowed bool) {
	preallocCache.Store(dev, allowed)
}

func preallocCacheHit()  { preallocCacheHits.Add(1) }
func preallocCacheMiss() { preallocCacheMisses.Add(1) }

func preallocSuccessInc()     { preallocSuccesses.Add(1) }
func preallocFailureInc()     { preallocFailures.Add(1) }
func preallocUnsupportedInc() { preallocUnsupported.Add(1) }

// PreallocCacheStats returns the cache hit and miss counters.
func PreallocCacheStats() (hits uint64, misses uint64) {
	return preallocCacheHits.Load(), preallocCacheMisses.Load()
}

// PreallocSuccessCount returns the number of successful prealloc attempts.
func PreallocSuccessCount() uint64 { return preallocSuccesses.Load() }

// PreallocFailureCount returns the number of failed prealloc attempts.
func PreallocFailureCount() uint64 { return preallocFailures.Load() }

// PreallocUnsupportedCount returns the number of prealloc attempts that
// were not supported by the underlying filesystem/device.
func PreallocUnsupportedCount() uint64 { return preallocUnsupported.Load() }
