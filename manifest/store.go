package manifest

import (
	"io"
	"os"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/sys"
	"github.com/cockroachdb/errors"
)

// Write atomically replaces the manifest of the volume at dir. The new
// content goes to a temporary file which is synced and then renamed over the
// old one, so a crash leaves either the old or the new manifest, never a
// torn one.
func Write(dir string, m *Manifest, perm os.FileMode) error {
	if err := m.Validate(false); err != nil {
		return errors.Wrap(err, "refusing to write invalid manifest")
	}
	data := Encode(m)
	if perm == 0 {
		perm = 0600
	}

	// 1. Create a temporary file.
	tempPath := core.ManifestTempPath(dir)
	file, err := sys.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return core.IOError(err, "create", tempPath)
	}

	// 2. Write the encoded manifest.
	if _, err := file.Write(data); err != nil {
		file.Close()
		return core.IOError(err, "write", tempPath)
	}

	// 3. Fsync the temporary file so the rename never exposes unwritten data.
	if err := file.Sync(); err != nil {
		file.Close()
		return core.IOError(err, "sync", tempPath)
	}

	// 4. Close the file BEFORE renaming.
	if err := file.Close(); err != nil {
		return core.IOError(err, "close", tempPath)
	}

	// 5. Atomically rename the temporary file to the final name.
	finalPath := core.ManifestPath(dir)
	if err := sys.Rename(tempPath, finalPath); err != nil {
		return core.IOError(err, "rename", tempPath)
	}

	// 6. Persist the directory entry.
	if err := sys.SyncDir(dir); err != nil {
		return core.IOError(err, "sync", dir)
	}
	return nil
}

// Read loads and decodes the manifest of the volume at dir.
func Read(dir string) (*Manifest, error) {
	path := core.ManifestPath(dir)
	file, err := sys.Open(path)
	if err != nil {
		return nil, core.IOError(err, "open", path)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, core.IOError(err, "read", path)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	if err := m.Validate(false); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return m, nil
}

// Exists reports whether dir already holds a manifest.
func Exists(dir string) (bool, error) {
	_, err := os.Stat(core.ManifestPath(dir))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, core.IOError(err, "stat", core.ManifestPath(dir))
}
