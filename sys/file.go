package sys

import (
	"io"
	"os"
	"sync/atomic"
)

// fileWrapper is a stable concrete type used to store the File interface
// inside an atomic.Value. atomic.Value requires that all stored values
// have the same concrete type.
type fileWrapper struct {
	f File
}

// defaultFile stores the current platform `File` implementation wrapped in a
// concrete `fileWrapper`.
var defaultFile atomic.Value // stores fileWrapper
var debugMode atomic.Bool

// File abstracts the platform calls the volume engine needs on paths.
type File interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
	// SyncDir makes directory entry changes (create, rename) durable.
	SyncDir(dir string) error
}

// FileHandle is an open file as used by the append-only files and the
// manifest writer.
type FileHandle interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
	Fd() uintptr
}

type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)
type RenameHandler func(oldpath, newpath string) error
type MkdirAllHandler func(path string, perm os.FileMode) error
type SyncDirHandler func(dir string) error

func init() {
	debugMode.Store(false)
	defaultFile.Store(fileWrapper{f: NewFile()})
}

// SetDefaultFile replaces the platform implementation, mainly for tests
// that inject failures.
func SetDefaultFile(file File) {
	defaultFile.Store(fileWrapper{f: file})
}

// SetDebugMode makes OpenFile return DebugFile handles that log their
// lifetime and are listed by PrintMapFiles.
func SetDebugMode(mode bool) {
	debugMode.Store(mode)
}

func loadFile() (File, error) {
	p := defaultFile.Load()
	if p == nil {
		return nil, os.ErrInvalid
	}
	fw, ok := p.(fileWrapper)
	if !ok || fw.f == nil {
		return nil, os.ErrInvalid
	}
	return fw.f, nil
}

var OpenFile OpenFileHandler = (func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	file, err := loadFile()
	if err != nil {
		return nil, err
	}
	if debugMode.Load() {
		return DOpenFile(file, name, flag, perm)
	}
	return ROpenFile(file, name, flag, perm)
})

// Open opens name read-only.
func Open(name string) (FileHandle, error) {
	return OpenFile(name, os.O_RDONLY, 0)
}

var Rename RenameHandler = (func(oldpath, newpath string) error {
	file, err := loadFile()
	if err != nil {
		return err
	}
	return file.Rename(oldpath, newpath)
})

var MkdirAll MkdirAllHandler = (func(path string, perm os.FileMode) error {
	file, err := loadFile()
	if err != nil {
		return err
	}
	return file.MkdirAll(path, perm)
})

var SyncDir SyncDirHandler = (func(dir string) error {
	file, err := loadFile()
	if err != nil {
		return err
	}
	return file.SyncDir(dir)
})
