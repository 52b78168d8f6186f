package core

import (
	"fmt"
	"path/filepath"
)

// This file centralizes constants related to the on-disk volume format,
// magic numbers and default file names.

// --- Magic Numbers ---
const (
	// ManifestMagicNumber identifies a volume manifest ("DDCF").
	ManifestMagicNumber uint32 = 0x44444346
)

// --- File Names ---
const (
	// ManifestFileName is the name of the manifest inside a volume directory.
	ManifestFileName = "config"
	// LockFileName is the sentinel used for the single-writer lock.
	LockFileName = "lock"

	DefaultBlockFileName     = "blocks"
	DefaultRecordFileName    = "records"
	DefaultAlignedDataName   = "aligned.data"
	DefaultUnalignedDataName = "unaligned.data"
	tempSuffix               = "tmp"
)

// --- Protocol & Format Versions ---
const (
	// ManifestVersion is the only manifest layout this build can read or write.
	ManifestVersion uint32 = 1
)

// --- Fixed encoded sizes ---
const (
	// BlockHeaderSize is the encoded size of a wire BlockHeader.
	BlockHeaderSize = 24
	// RecordHeaderSize is the encoded size of a wire RecordHeader.
	RecordHeaderSize = 12
	// BlockEntrySize is the encoded size of a Block as stored in the block file.
	BlockEntrySize = BlockHeaderSize + 8 + 8
	// RecordEntrySize is the encoded size of a Record as stored in the record file.
	RecordEntrySize = RecordHeaderSize + 4 + 8 + 8
)

// --- Default Sizes & Limits ---
const (
	// DefaultDedupBlockSize is the size class of the aligned data file created
	// for new volumes.
	DefaultDedupBlockSize = 16 * 1024
	// AnySize is the BlockSize of the fallback data file; it accepts every payload.
	AnySize = 1
)

// FormatTempFilename returns the name used while a file is being replaced.
func FormatTempFilename(prefix, postfix string) string {
	return fmt.Sprintf("%s.%s", prefix, postfix)
}

// ManifestPath returns the manifest path of the volume at dir.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestFileName)
}

// ManifestTempPath returns the temporary path a new manifest is written to
// before it is renamed over ManifestPath.
func ManifestTempPath(dir string) string {
	return filepath.Join(dir, FormatTempFilename(ManifestFileName, tempSuffix))
}
