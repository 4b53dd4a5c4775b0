package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ensure canonical runtime folder layout exists under db path, not symlink, restrictive perms, writable
func EnsureStateDirs(p Paths) error {
	for _, dir := range []string{p.Store, p.Audit, p.Retention} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}

		// must be directory and not symlink if exists
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}

		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", dir, err)
		}

		// check writable by creating and deleting temp file
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return nil
}

// Init resolves the layout for dbPath and creates it.
func Init(dbPath string) (Paths, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = "./.database"
	}
	p := PathsFor(filepath.Clean(path))
	if err := EnsureStateDirs(p); err != nil {
		return Paths{}, err
	}
	return p, nil
}
