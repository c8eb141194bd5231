//go:build windows

package visengine

import "os"

// unlinkOnOpen is a no-op on Windows, where an open file cannot be unlinked
// out from under its own handle; PagedStore.Close removes the file instead
// once the handle is released (spec.md §6: "deleted on close elsewhere").
func unlinkOnOpen(f *os.File, name string) {}
