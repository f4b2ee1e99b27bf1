package fsops

import (
	"io/fs"
	"os"
	"syscall"
)

// OSDeleter implements Deleter using real os package calls.
// Unlike the raw os functions it never crosses strategies: Remove refuses
// directories (even empty ones) and RemoveAll refuses non-directories and
// reports a missing path instead of treating it as already removed.
type OSDeleter struct{}

func (OSDeleter) Remove(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "remove", Path: path, Err: syscall.EISDIR}
	}
	return os.Remove(path)
}

// RemoveAll removes a symbolic link itself without following it.
func (OSDeleter) RemoveAll(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
		return &fs.PathError{Op: "removeall", Path: path, Err: syscall.ENOTDIR}
	}
	return os.RemoveAll(path)
}
