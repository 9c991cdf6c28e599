//go:build linux

package fsutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameNoReplace atomically moves oldpath to newpath, failing with an error
// matching fs.ErrExist if newpath already exists.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		// Filesystem or kernel without RENAME_NOREPLACE.
		return linkNoReplace(oldpath, newpath)
	}
	return err
}
