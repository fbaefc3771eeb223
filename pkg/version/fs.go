// ABOUTME: Crash-safe file primitives for the version store
// ABOUTME: Temp-file writes, no-clobber publish, atomic replace, directory fsync

package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const tempPattern = ".tmp-*"

// errNotDurable marks a replace whose rename landed but whose directory
// fsync failed. Readers already see the new content.
var errNotDurable = errors.New("replaced but not durable")

// syncDir is swapped in tests to simulate fsync failures
var syncDir = syncDirectory

// writeTemp writes data to a new temp file in dir and returns its path. The
// file is fsynced before close unless noSync is set.
func writeTemp(dir string, data []byte, noSync bool) (string, error) {
	tmpFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if !noSync {
		if err := tmpFile.Sync(); err != nil {
			tmpFile.Close()
			return "", fmt.Errorf("fsync %s: %w", tmpPath, err)
		}
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	success = true
	return tmpPath, nil
}

// publishFile makes data visible at finalPath only if nothing exists there
// yet. A hard link is atomic and fails with os.ErrExist on collision, so two
// writers can never both claim the same name. The temp file is always removed,
// and so is finalPath when the link cannot be made durable.
func publishFile(finalPath string, data []byte, noSync bool) error {
	dir := filepath.Dir(finalPath)
	tmpPath, err := writeTemp(dir, data, noSync)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, finalPath); err != nil {
		return err
	}
	if noSync {
		return nil
	}
	if err := syncDir(dir); err != nil {
		os.Remove(finalPath)
		return err
	}
	return nil
}

// replaceFile atomically replaces finalPath with data. Readers see either
// the old content or the new content, never a mix. An error wrapping
// errNotDurable means the rename happened and cannot be undone.
func replaceFile(finalPath string, data []byte, noSync bool) error {
	dir := filepath.Dir(finalPath)
	tmpPath, err := writeTemp(dir, data, noSync)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming to %s: %w", finalPath, err)
	}
	if noSync {
		return nil
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%s: %w: %w", finalPath, errNotDurable, err)
	}
	return nil
}

// WriteFileAtomic writes data to path through a temp file and rename, creating
// parent directories as needed.
func WriteFileAtomic(path string, data []byte, noSync bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	return replaceFile(path, data, noSync)
}

// syncDirectory fsyncs a directory so that renames and links inside it
// survive a crash.
func syncDirectory(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsync directory %s: %w", dir, err)
	}
	return nil
}
