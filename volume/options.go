package volume

import (
	"io"
	"log/slog"
	"os"

	"github.com/INLOpen/dedupstore/appendfile"
	"github.com/INLOpen/dedupstore/core"
)

// Options configure how a volume is created and opened.
type Options struct {
	// DedupBlockSize is the size class of the aligned data file of a new
	// volume. It is ignored when opening an existing volume.
	DedupBlockSize uint64
	// IndexGrowEntries is the number of block/record entries the index files
	// grow by at once.
	IndexGrowEntries int64
	// DataGrowBytes is the number of bytes the data files grow by at once.
	DataGrowBytes int64
	// SyncOnCommit fsyncs every file before the manifest is rewritten.
	SyncOnCommit bool
	// Preallocate grows files with fallocate where supported.
	Preallocate bool
	// Lock takes an exclusive lock on the volume directory for writers.
	Lock bool
	// FileMode is used for every file the volume creates.
	FileMode os.FileMode

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		DedupBlockSize:   core.DefaultDedupBlockSize,
		IndexGrowEntries: 1024,
		DataGrowBytes:    appendfile.DefaultGrowBytes,
		SyncOnCommit:     true,
		Preallocate:      true,
		Lock:             true,
		FileMode:         0600,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) fileMode() os.FileMode {
	if o.FileMode == 0 {
		return 0600
	}
	return o.FileMode
}

// dirMode adds the search bits to fileMode wherever it grants read access.
func (o Options) dirMode() os.FileMode {
	m := o.fileMode()
	return m | (m&0444)>>2
}

func (o Options) indexOptions(entrySize int, logger *slog.Logger) appendfile.Options {
	entries := o.IndexGrowEntries
	if entries <= 0 {
		entries = 1024
	}
	return appendfile.Options{
		GrowBytes:   entries * int64(entrySize),
		Preallocate: o.Preallocate,
		Perm:        o.fileMode(),
		Logger:      logger,
	}
}

func (o Options) dataOptions(logger *slog.Logger) appendfile.Options {
	return appendfile.Options{
		GrowBytes:   o.DataGrowBytes,
		Preallocate: o.Preallocate,
		Perm:        o.fileMode(),
		Logger:      logger,
	}
}
