// Package fsutil holds the small idempotent filesystem operations oct needs
// around a playbook run: making sure the log directory exists and cleaning
// up temporary files afterwards.
package fsutil

import (
	"fmt"
	"os"
)

// EnsureDirectory creates path (and parents) if it does not exist.
// It reports whether anything was created.
func EnsureDirectory(path string) (bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return false, err
		}
		return true, nil
	} else if err != nil {
		return false, err
	}

	if !info.IsDir() {
		return false, fmt.Errorf("'%s' exists but is not a directory", path)
	}
	return false, nil
}

// RemovePath removes path and anything below it. It reports whether the
// path existed.
func RemovePath(path string) (bool, error) {
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if err := os.RemoveAll(path); err != nil {
		return true, err
	}
	return true, nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
