package testutil

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/INLOpen/dedupstore/sys"
	"github.com/cockroachdb/errors"
)

// ErrInjected is returned by the failing operations installed below.
var ErrInjected = errors.New("injected failure")

type syncFailHandle struct {
	sys.FileHandle
	fail *atomic.Bool
}

func (h syncFailHandle) Sync() error {
	if h.fail.Load() {
		return ErrInjected
	}
	return h.FileHandle.Sync()
}

// FailSync wraps every file opened through sys from now on so that Sync
// returns ErrInjected while the returned flag is set. Files opened before
// the call are not affected.
func FailSync(t *testing.T) *atomic.Bool {
	t.Helper()
	orig := sys.OpenFile
	fail := new(atomic.Bool)
	sys.OpenFile = func(name string, flag int, perm os.FileMode) (sys.FileHandle, error) {
		h, err := orig(name, flag, perm)
		if err != nil {
			return nil, err
		}
		return syncFailHandle{FileHandle: h, fail: fail}, nil
	}
	t.Cleanup(func() { sys.OpenFile = orig })
	return fail
}

type renameFailFile struct {
	sys.File
	fail *atomic.Bool
}

func (f renameFailFile) Rename(oldpath, newpath string) error {
	if f.fail.Load() {
		return ErrInjected
	}
	return f.File.Rename(oldpath, newpath)
}

// FailRename installs a platform layer whose Rename returns ErrInjected
// while the returned flag is set. The flag starts set.
func FailRename(t *testing.T) *atomic.Bool {
	t.Helper()
	fail := new(atomic.Bool)
	fail.Store(true)
	sys.SetDefaultFile(renameFailFile{File: sys.NewFile(), fail: fail})
	t.Cleanup(func() { sys.SetDefaultFile(sys.NewFile()) })
	return fail
}
