package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// Shared mappings live in the page cache on Linux, so fdatasync on the file
// covers them and no msync is needed.
func fdatasync(f *os.File, _ []byte) error {
	return unix.Fdatasync(int(f.Fd()))
}
