//go:build !unix && !windows

package mmap

import "os"

func fdatasync(f *os.File, _ []byte) error {
	return f.Sync()
}
