//go:build !windows

package visengine

import "os"

// unlinkOnOpen removes the directory entry for an already-open scratch file
// so the space is reclaimed automatically when the process exits, per
// spec.md §4.1 ("On POSIX the directory entry is unlinked immediately after
// open"). The open file descriptor remains valid and readable/writable.
func unlinkOnOpen(f *os.File, name string) {
	_ = os.Remove(name)
}
