package testutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/manifest"
)

// SyncEnabled reports whether tests should fsync on commit. It reads the
// `DEDUP_TEST_SYNC` environment variable; the default is false to keep
// tests fast.
func SyncEnabled() bool {
	v := strings.TrimSpace(os.Getenv("DEDUP_TEST_SYNC"))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// RequireVolumeFiles asserts that dir holds a readable manifest and every
// file it lists. It returns the manifest.
func RequireVolumeFiles(t *testing.T, dir string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Read(dir)
	if err != nil {
		t.Fatalf("expected a readable manifest in %s: %v", dir, err)
	}
	var paths []string
	for _, f := range m.BlockFiles {
		paths = append(paths, f.Path)
	}
	for _, f := range m.RecordFiles {
		paths = append(paths, f.Path)
	}
	for _, f := range m.DataFiles {
		paths = append(paths, f.Path)
	}
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("manifest lists %s but it is missing: %v", p, err)
		}
	}
	return m
}

// ListVolumeFiles returns the names of the regular files in dir, excluding
// the manifest and lock.
func ListVolumeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == core.ManifestFileName || e.Name() == core.LockFileName {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}
