package core

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Every error returned by the engine is marked with exactly
// one of these so callers can decide how to react without string matching.
var (
	// ErrFormat marks a manifest or file that this build cannot interpret.
	ErrFormat = errors.New("format error")
	// ErrIO marks a failed open/read/write/truncate/sync.
	ErrIO = errors.New("i/o error")
	// ErrConsistency marks on-disk state that contradicts the manifest.
	ErrConsistency = errors.New("consistency error")
	// ErrPrecondition marks caller misuse.
	ErrPrecondition = errors.New("precondition violated")
)

// Specific conditions. Each one is also marked with its class above.
var (
	ErrConfigTooSmall  = errors.Mark(errors.New("config file too small"), ErrFormat)
	ErrConfigTooBig    = errors.Mark(errors.New("config file too big"), ErrFormat)
	ErrBadMagic        = errors.Mark(errors.New("bad config magic"), ErrFormat)
	ErrBadVersion      = errors.Mark(errors.New("bad config version"), ErrFormat)
	ErrBadHeaderSize   = errors.Mark(errors.New("bad header size"), ErrFormat)
	ErrBadFileCount    = errors.Mark(errors.New("bad config file"), ErrFormat)
	ErrBadChecksum     = errors.Mark(errors.New("config checksum mismatch"), ErrFormat)
	ErrBadStringRef    = errors.Mark(errors.New("string area too small"), ErrFormat)
	ErrBadWireBlock    = errors.Mark(errors.New("bad block"), ErrFormat)
	ErrInvalidManifest = errors.Mark(errors.New("invalid manifest"), ErrFormat)

	ErrUnknownDataFile = errors.Mark(errors.New("record references unknown data file"), ErrConsistency)
	ErrRangeExceeded   = errors.Mark(errors.New("range exceeds logical size"), ErrConsistency)
	ErrFileTooShort    = errors.Mark(errors.New("file shorter than its logical size"), ErrConsistency)

	ErrReadOnly        = errors.Mark(errors.New("volume is read only"), ErrPrecondition)
	ErrWriteOnly       = errors.Mark(errors.New("volume is write only"), ErrPrecondition)
	ErrNoActiveBlock   = errors.Mark(errors.New("no matching active block"), ErrPrecondition)
	ErrBlockInProgress = errors.Mark(errors.New("a block is already in progress"), ErrPrecondition)
	ErrBlockOutOfRange = errors.Mark(errors.New("block out of range"), ErrPrecondition)
	ErrBufferTooSmall  = errors.Mark(errors.New("buffer too small"), ErrPrecondition)
	ErrVolumeLocked    = errors.Mark(errors.New("volume is locked by another writer"), ErrPrecondition)
	ErrVolumeExists    = errors.Mark(errors.New("volume already exists"), ErrPrecondition)
	ErrGrow            = errors.Mark(errors.New("logical size may only shrink"), ErrPrecondition)
	ErrClosed          = errors.Mark(errors.New("volume is closed"), ErrPrecondition)
)

// IOError wraps an OS error with the operation and path it happened on and
// marks it as ErrIO.
func IOError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "%s %s", op, path), ErrIO)
}

// IsFormatError checks if an error is (or wraps) a format error.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}

// IsIOError checks if an error is (or wraps) an I/O error.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsConsistencyError checks if an error signals a corrupt or foreign volume.
func IsConsistencyError(err error) bool {
	return errors.Is(err, ErrConsistency)
}

// IsPreconditionError checks if an error is caused by caller misuse.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
