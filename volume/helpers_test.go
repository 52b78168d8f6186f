package volume

import (
	"os"
	"path/filepath"
)

func writeEmpty(dir, name string) error {
	return os.WriteFile(filepath.Join(dir, name), nil, 0600)
}
