// Package mmap maps data files into memory for the palloc medium.
package mmap

import (
	"fmt"
	"os"
)

type Options uint

const (
	// Writable opens the mapping for writing (otherwise, it's read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Map memory maps the first size bytes of f. The file must already be at
// least size bytes long.
func Map(f *os.File, size int, opt Options) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}
	if size > MaxSize {
		return nil, fmt.Errorf("mmap: size %d exceeds platform limit %d", size, MaxSize)
	}
	return mmap(f, size, opt)
}

// Unmap unmaps the given slice from memory. The slice must have been returned
// by Map or Remap. Unmapping a nil slice is a no-op.
func Unmap(b []byte) error {
	if b == nil {
		return nil
	}
	return munmap(b)
}

// Remap resizes f to size bytes and returns a fresh mapping of it, releasing
// old first. The old slice must not be used afterwards, even on error.
func Remap(f *os.File, old []byte, size int, opt Options) ([]byte, error) {
	if err := Unmap(old); err != nil {
		return nil, fmt.Errorf("mmap: unmap before resize: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("mmap: resize to %d: %w", size, err)
	}
	return Map(f, size, opt)
}
