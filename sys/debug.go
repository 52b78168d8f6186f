package sys

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var _ FileHandle = (*DebugFile)(nil)
var nextID atomic.Uint64

var listFD *sync.Map = new(sync.Map)

var debugLogger atomic.Pointer[slog.Logger]

// SetDebugLogger sets the logger used by DebugFile handles. By default they
// log to stderr at debug level.
func SetDebugLogger(logger *slog.Logger) {
	debugLogger.Store(logger)
}

// DebugFile logs open/close/truncate/sync and keeps track of every handle
// that is still open, which helps to find leaked volume files.
type DebugFile struct {
	id     uint64
	f      *os.File
	logger *slog.Logger
}

func DOpenFile(sysFile File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	logger := debugLogger.Load()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	logger = logger.With("component", "DebugFile")

	f, err := sysFile.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	id := nextID.Add(1)
	logger = logger.With("id", id, "file_name", name)
	logger.Debug("Opening file", "flag", flag)
	listFD.Store(id, f.Name())

	return &DebugFile{
		id:     id,
		f:      f,
		logger: logger,
	}, nil
}

func (df *DebugFile) Write(p []byte) (n int, err error) { return df.f.Write(p) }

func (df *DebugFile) Read(p []byte) (n int, err error) { return df.f.Read(p) }

func (df *DebugFile) Seek(offset int64, whence int) (int64, error) {
	return df.f.Seek(offset, whence)
}

func (df *DebugFile) Stat() (os.FileInfo, error) { return df.f.Stat() }

func (df *DebugFile) Sync() error {
	df.logger.Debug("Syncing file")
	return df.f.Sync()
}

func (df *DebugFile) Truncate(size int64) error {
	df.logger.Debug("Truncating file", "size", size)
	return df.f.Truncate(size)
}

func (df *DebugFile) Name() string { return df.f.Name() }

func (df *DebugFile) Fd() uintptr { return df.f.Fd() }

func (df *DebugFile) WriteAt(p []byte, off int64) (n int, err error) {
	return df.f.WriteAt(p, off)
}

func (df *DebugFile) ReadAt(p []byte, off int64) (n int, err error) {
	return df.f.ReadAt(p, off)
}

func (df *DebugFile) Close() error {
	df.logger.Debug("Closing file")
	listFD.Delete(df.id)
	return df.f.Close()
}

// OpenDebugFiles returns the names of DebugFile handles that were not closed yet.
func OpenDebugFiles() []string {
	var names []string
	listFD.Range(func(_, value any) bool {
		names = append(names, value.(string))
		return true
	})
	return names
}

// PrintMapFiles writes the currently open DebugFile handles to w.
func PrintMapFiles(w io.Writer) {
	fmt.Fprintln(w, "List Files Opening")
	listFD.Range(func(key, value any) bool {
		fmt.Fprintf(w, "Key: %v, Value: %v\n", key, value)
		return true
	})
}
