//go:build unix

package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	prot := unix.PROT_READ
	if opt.Has(Writable) {
		prot |= unix.PROT_WRITE
	}

	flags := unix.MAP_SHARED
	if opt.Has(Prefault) {
		flags |= mapPopulate
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, prot, flags)
	if err != nil {
		return nil, err
	}

	var advice int
	switch {
	case opt.Has(SequentialAccess):
		advice = unix.MADV_SEQUENTIAL
	case opt.Has(RandomAccess):
		advice = unix.MADV_RANDOM
	default:
		return b, nil
	}
	err = unix.Madvise(b, advice)
	if err != nil && err != syscall.ENOSYS {
		// ENOSYS is fine, the mapping still works without the hint.
		_ = unix.Munmap(b)
		return nil, fmt.Errorf("madvise(%d): %w", advice, err)
	}
	return b, nil
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}
