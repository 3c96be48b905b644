package mmap

import "os"

// Fdatasync makes the data written to f, directly or through mapping, durable.
// mapping may be nil when the file is not mapped.
//
// Fdatasync avoids syncing metadata (like modification times) where the
// platform allows, which is faster than f.Sync().
//
// WARNING: ERRORS RETURNED BY THIS FUNCTION ARE NOT RECOVERABLE. Many operating
// systems and file systems mark modified pages as clean in case of fsync
// failures, and there is no way to ensure data correctness after a failure.
// The only sensible handling is to stop writing to the file and require
// manual inspection.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
