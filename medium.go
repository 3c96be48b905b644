package qe

import "github.com/andreyvit/qe/palloc"

// Medium is offset-addressed, variable-length record storage. Offset 0 never
// addresses a record and signals "none".
//
// Implementations are not required to be safe for concurrent use; the engine
// calls them from one goroutine at a time.
type Medium interface {
	// Alloc reserves a record of exactly size bytes.
	Alloc(size int) (uint64, error)

	// Free releases the record at off.
	Free(off uint64) error

	// SizeOf returns the byte length of the record at off.
	SizeOf(off uint64) (int, error)

	// ReadAt copies the record at off into buf, returning the number of bytes
	// copied. A count below len(buf) means the read came up short.
	ReadAt(off uint64, buf []byte) (int, error)

	// WriteAt overwrites the record at off, returning the number of bytes
	// written. A count below len(data) means the write came up short.
	WriteAt(off uint64, data []byte) (int, error)

	// First returns the first live record, or 0 when there are none.
	First() (uint64, error)

	// Next returns the live record after off in medium order, or 0.
	Next(off uint64) (uint64, error)

	Close() error
}

// sizer is implemented by media that know their on-disk footprint.
type sizer interface {
	Size() int64
}

var (
	_ Medium = (*palloc.Allocator)(nil)
	_ sizer  = (*palloc.Allocator)(nil)
)
