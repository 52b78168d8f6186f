package device

import (
	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/volume"
)

// KindDedup is the kind of the deduplicating volume backend.
const KindDedup = "dedup"

func init() {
	Register(KindDedup, openDedup)
}

type dedupDevice struct {
	vol *volume.Volume
}

var _ Device = (*dedupDevice)(nil)

func openDedup(path string, mode core.OpenMode, opts Options) (Device, error) {
	vopts := opts.Volume
	if vopts.Logger == nil {
		vopts.Logger = opts.Logger
	}
	vol, err := volume.Open(path, mode, vopts)
	if err != nil {
		return nil, err
	}
	return &dedupDevice{vol: vol}, nil
}

func (d *dedupDevice) Read(buf []byte) (int, error)  { return d.vol.Read(buf) }
func (d *dedupDevice) Write(buf []byte) (int, error) { return d.vol.Write(buf) }
func (d *dedupDevice) Truncate() error               { return d.vol.Reset() }
func (d *dedupDevice) GotoBlock(n uint64) error      { return d.vol.GotoBlock(n) }
func (d *dedupDevice) EOD() bool                     { return d.vol.AtEnd() }
func (d *dedupDevice) IsOK() bool                    { return d.vol.IsOK() }
func (d *dedupDevice) Close() error                  { return d.vol.Close() }

func (d *dedupDevice) GotoBegin() error {
	if err := d.vol.Err(); err != nil {
		return err
	}
	d.vol.GotoBegin()
	return nil
}

func (d *dedupDevice) GotoEnd() error {
	if err := d.vol.Err(); err != nil {
		return err
	}
	d.vol.GotoEnd()
	return nil
}
