// Package device exposes volumes through the fixed capability set the
// storage daemon drives, with the backend chosen by a kind string at open
// time.
package device

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/volume"
	"github.com/cockroachdb/errors"
)

// Device is an open backend volume.
type Device interface {
	// Read reads the block at the current position and advances. It returns
	// io.EOF past the last block.
	Read(buf []byte) (int, error)
	// Write appends one wire block.
	Write(buf []byte) (int, error)
	// Truncate empties the volume.
	Truncate() error
	GotoBegin() error
	GotoBlock(n uint64) error
	GotoEnd() error
	// EOD reports whether the position is at the end of data.
	EOD() bool
	IsOK() bool
	Close() error
}

// Options are passed to every backend.
type Options struct {
	Volume volume.Options
	Logger *slog.Logger
}

// Factory opens a device of one kind.
type Factory func(path string, mode core.OpenMode, opts Options) (Device, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// ErrUnknownKind is returned by Open for a kind nobody registered.
var ErrUnknownKind = errors.Mark(errors.New("unknown device kind"), core.ErrPrecondition)

// Register makes a backend available under kind. Registering a kind twice
// panics.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		panic("device: Register factory is nil")
	}
	if _, dup := factories[kind]; dup {
		panic("device: Register called twice for kind " + kind)
	}
	factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open opens path with the backend registered as kind.
func Open(kind, path string, mode core.OpenMode, opts Options) (Device, error) {
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	return f(path, mode, opts)
}
