// Package palloc implements a persistent, offset-addressed allocator of
// variable-length records inside a single memory-mapped file.
//
// # File format
//
// The file starts with a fixed header followed by blocks that tile the rest of
// the file without gaps:
//
//   - header = magic:64 version:32 flags:32 reserved:64*5 checksum:64
//   - block  = capacity:64 length:32 flags:32 payload[capacity]
//
// The header checksum is xxhash64 of the bytes preceding it. Capacities are
// multiples of 8, so every block header stays 8-byte aligned. A record offset
// is the offset of its payload, so zero is never a valid offset and is used to
// signal "none".
//
// Free blocks are tracked in memory (rebuilt by scanning the file on open)
// and allocation is first-fit with splitting; adjacent free blocks are merged
// on free and on open. With Dynamic the file grows on demand, otherwise
// allocation fails with ErrNoSpace once the initial size is exhausted.
//
// An Allocator is not safe for concurrent use.
package palloc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/qe/mmap"
)

var (
	ErrCorrupted          = errors.New("palloc: corrupted file")
	ErrUnsupportedVersion = errors.New("palloc: unsupported file version")
	ErrNoSpace            = errors.New("palloc: no space left")
	ErrInvalidOffset      = errors.New("palloc: offset does not address a live record")
	ErrClosed             = errors.New("palloc: closed")
)

type Flags uint32

const (
	Default Flags = 0

	// Dynamic lets the file grow when no free block fits an allocation.
	Dynamic Flags = 1 << 0

	// Sync flushes the mapping to disk after every mutation.
	Sync Flags = 1 << 1

	// Prefault asks the OS to load the whole file into memory upfront.
	Prefault Flags = 1 << 2
)

func (f Flags) Has(v Flags) bool {
	return f&v != 0
}

type Options struct {
	Flags Flags

	// InitialSize is the size of a newly created file. Defaults to
	// DefaultInitialSize. Ignored when opening an existing file.
	InitialSize int
}

const DefaultInitialSize = 64 * 1024

const (
	magic          = 0x434f4c4c41504551 // "QEPALLOC" as little-endian uint64
	version uint32 = 1

	headerSize      = 64
	checksumOffset  = headerSize - 8
	blockHeaderSize = 16
	alignment       = 8

	minInitialSize = 4096
	maxGrowthStep  = 64 * 1024 * 1024

	blockUsed uint32 = 1 << 0
)

type Allocator struct {
	f     *os.File
	data  []byte
	flags Flags

	// free holds block header offsets of free blocks, sorted.
	free []uint64

	closed bool
	err    error
}

// Open opens the allocator file at path, creating and initialising it when it
// does not exist or is empty.
func Open(path string, opt Options) (*Allocator, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("palloc: %w", err)
	}
	a, err := open(f, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func open(f *os.File, opt Options) (*Allocator, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("palloc: %w", err)
	}

	a := &Allocator{f: f, flags: opt.Flags}

	size := st.Size()
	if size == 0 {
		initial := opt.InitialSize
		if initial == 0 {
			initial = DefaultInitialSize
		}
		initial = max(alignUp(initial), minInitialSize)
		if err := f.Truncate(int64(initial)); err != nil {
			return nil, fmt.Errorf("palloc: %w", err)
		}
		if err := a.mapFile(initial); err != nil {
			return nil, err
		}
		a.init()
		if err := a.flush(); err != nil {
			a.unmap()
			return nil, err
		}
		return a, nil
	}

	if size < headerSize+blockHeaderSize || size%alignment != 0 {
		return nil, fmt.Errorf("%w: file size %d", ErrCorrupted, size)
	}
	if err := a.mapFile(int(size)); err != nil {
		return nil, err
	}
	if err := a.load(); err != nil {
		a.unmap()
		return nil, err
	}
	return a, nil
}

func (a *Allocator) mapFile(size int) error {
	data, err := mmap.Map(a.f, size, a.mapOptions())
	if err != nil {
		return fmt.Errorf("palloc: mmap: %w", err)
	}
	a.data = data
	return nil
}

func (a *Allocator) unmap() {
	_ = mmap.Unmap(a.data)
	a.data = nil
}

func (a *Allocator) init() {
	h := a.data[:headerSize]
	clear(h)
	binary.LittleEndian.PutUint64(h[0:], magic)
	binary.LittleEndian.PutUint32(h[8:], version)
	binary.LittleEndian.PutUint32(h[12:], uint32(a.flags))
	binary.LittleEndian.PutUint64(h[checksumOffset:], xxhash.Sum64(h[:checksumOffset]))

	b := uint64(headerSize)
	a.putBlock(b, uint64(len(a.data))-b-blockHeaderSize, 0, 0)
	a.free = []uint64{b}
}

func (a *Allocator) load() error {
	h := a.data[:headerSize]
	if binary.LittleEndian.Uint64(h[0:]) != magic {
		return fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	if sum := xxhash.Sum64(h[:checksumOffset]); sum != binary.LittleEndian.Uint64(h[checksumOffset:]) {
		return fmt.Errorf("%w: header checksum mismatch", ErrCorrupted)
	}
	if v := binary.LittleEndian.Uint32(h[8:]); v != version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	a.free = a.free[:0]
	end := uint64(len(a.data))
	for b := uint64(headerSize); b < end; {
		c, err := a.checkedCap(b)
		if err != nil {
			return err
		}
		next := b + blockHeaderSize + c
		if a.blockFlags(b)&blockUsed == 0 {
			if n := len(a.free); n > 0 && a.blockEnd(a.free[n-1]) == b {
				// merge runs of free blocks left behind by older versions or crashes
				prev := a.free[n-1]
				a.setCap(prev, next-prev-blockHeaderSize)
			} else {
				a.free = append(a.free, b)
			}
		}
		b = next
	}
	return nil
}

// Close flushes and unmaps the file. Closing twice is a no-op.
func (a *Allocator) Close() error {
	if a == nil || a.closed {
		return nil
	}
	a.closed = true
	var err error
	if a.data != nil && a.err == nil {
		err = mmap.Fdatasync(a.f, a.data)
	}
	if e := mmap.Unmap(a.data); e != nil && err == nil {
		err = e
	}
	a.data = nil
	if e := a.f.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return fmt.Errorf("palloc: closing: %w", err)
	}
	return nil
}

// Sync flushes the mapping to disk.
func (a *Allocator) Sync() error {
	if err := a.usable(); err != nil {
		return err
	}
	return mmap.Fdatasync(a.f, a.data)
}

// Size returns the current file size.
func (a *Allocator) Size() int64 {
	return int64(len(a.data))
}

// Alloc reserves a record of exactly size bytes and returns its offset. The
// payload is zeroed.
func (a *Allocator) Alloc(size int) (uint64, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	if size <= 0 || uint64(size) > math.MaxUint32 {
		return 0, fmt.Errorf("palloc: invalid allocation size %d", size)
	}
	need := uint64(alignUp(size))

	i := a.firstFit(need)
	if i < 0 {
		if !a.flags.Has(Dynamic) {
			return 0, ErrNoSpace
		}
		if err := a.grow(need); err != nil {
			return 0, err
		}
		i = a.firstFit(need)
		if i < 0 {
			return 0, ErrNoSpace
		}
	}

	b := a.free[i]
	c := a.blockCap(b)
	if rest := c - need; rest >= blockHeaderSize+alignment {
		tail := b + blockHeaderSize + need
		a.putBlock(tail, rest-blockHeaderSize, 0, 0)
		a.free[i] = tail
		c = need
	} else {
		a.free = slices.Delete(a.free, i, i+1)
	}
	a.putBlock(b, c, uint32(size), blockUsed)
	clear(a.payload(b))

	off := b + blockHeaderSize
	return off, a.flush()
}

// Free releases the record at off.
func (a *Allocator) Free(off uint64) error {
	if err := a.usable(); err != nil {
		return err
	}
	b, err := a.usedBlock(off)
	if err != nil {
		return err
	}
	a.putBlock(b, a.blockCap(b), 0, 0)

	i, _ := slices.BinarySearch(a.free, b)
	a.free = slices.Insert(a.free, i, b)

	if i+1 < len(a.free) && a.blockEnd(b) == a.free[i+1] {
		next := a.free[i+1]
		a.setCap(b, a.blockEnd(next)-b-blockHeaderSize)
		a.free = slices.Delete(a.free, i+1, i+2)
	}
	if i > 0 && a.blockEnd(a.free[i-1]) == b {
		prev := a.free[i-1]
		a.setCap(prev, a.blockEnd(b)-prev-blockHeaderSize)
		a.free = slices.Delete(a.free, i, i+1)
	}
	return a.flush()
}

// SizeOf returns the length of the record at off.
func (a *Allocator) SizeOf(off uint64) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	b, err := a.usedBlock(off)
	if err != nil {
		return 0, err
	}
	return int(a.blockLen(b)), nil
}

// ReadAt copies the record at off into buf and returns the number of bytes
// copied. When buf is longer than the record, the count is short and the
// error is io.EOF.
func (a *Allocator) ReadAt(off uint64, buf []byte) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	b, err := a.usedBlock(off)
	if err != nil {
		return 0, err
	}
	n := copy(buf, a.payload(b)[:a.blockLen(b)])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt overwrites the record at off with data. A record never grows, so
// data longer than the record is truncated and io.ErrShortWrite returned.
func (a *Allocator) WriteAt(off uint64, data []byte) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	b, err := a.usedBlock(off)
	if err != nil {
		return 0, err
	}
	n := copy(a.payload(b)[:a.blockLen(b)], data)
	if err := a.flush(); err != nil {
		return n, err
	}
	if n < len(data) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// First returns the offset of the first live record, or 0 if there is none.
func (a *Allocator) First() (uint64, error) {
	return a.Next(0)
}

// Next returns the offset of the live record following off in file order, or
// 0 when off is the last one. Next(0) is First.
func (a *Allocator) Next(off uint64) (uint64, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	b := uint64(headerSize)
	if off != 0 {
		cur, err := a.usedBlock(off)
		if err != nil {
			return 0, err
		}
		b = a.blockEnd(cur)
	}
	end := uint64(len(a.data))
	for b < end {
		c, err := a.checkedCap(b)
		if err != nil {
			return 0, err
		}
		if a.blockFlags(b)&blockUsed != 0 {
			return b + blockHeaderSize, nil
		}
		b += blockHeaderSize + c
	}
	return 0, nil
}

func (a *Allocator) grow(need uint64) error {
	oldSize := uint64(len(a.data))
	step := min(max(oldSize, need+blockHeaderSize), maxGrowthStep)
	step = max(step, need+blockHeaderSize)
	newSize := uint64(alignUp(int(oldSize + step)))
	if newSize > mmap.MaxSize {
		return ErrNoSpace
	}

	data, err := mmap.Remap(a.f, a.data, int(newSize), a.mapOptions())
	if err != nil {
		a.data = nil
		a.err = fmt.Errorf("palloc: growing to %d: %w", newSize, err)
		return a.err
	}
	a.data = data

	if n := len(a.free); n > 0 && a.blockEnd(a.free[n-1]) == oldSize {
		last := a.free[n-1]
		a.setCap(last, newSize-last-blockHeaderSize)
	} else {
		a.putBlock(oldSize, newSize-oldSize-blockHeaderSize, 0, 0)
		a.free = append(a.free, oldSize)
	}
	return nil
}

func (a *Allocator) mapOptions() mmap.Options {
	opt := mmap.Writable | mmap.RandomAccess
	if a.flags.Has(Prefault) {
		opt |= mmap.Prefault
	}
	return opt
}

func (a *Allocator) firstFit(need uint64) int {
	for i, b := range a.free {
		if a.blockCap(b) >= need {
			return i
		}
	}
	return -1
}

func (a *Allocator) usable() error {
	if a.closed {
		return ErrClosed
	}
	return a.err
}

func (a *Allocator) flush() error {
	if !a.flags.Has(Sync) {
		return nil
	}
	if err := mmap.Fdatasync(a.f, a.data); err != nil {
		// fsync failures are not recoverable, see mmap.Fdatasync
		a.err = fmt.Errorf("palloc: sync: %w", err)
		return a.err
	}
	return nil
}

func (a *Allocator) usedBlock(off uint64) (uint64, error) {
	if off < headerSize+blockHeaderSize || off%alignment != 0 || off >= uint64(len(a.data)) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	b := off - blockHeaderSize
	if _, err := a.checkedCap(b); err != nil {
		return 0, err
	}
	if a.blockFlags(b)&blockUsed == 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	return b, nil
}

func (a *Allocator) checkedCap(b uint64) (uint64, error) {
	end := uint64(len(a.data))
	if b+blockHeaderSize > end {
		return 0, fmt.Errorf("%w: truncated block at %d", ErrCorrupted, b)
	}
	c := a.blockCap(b)
	if c%alignment != 0 || c > end-b-blockHeaderSize {
		return 0, fmt.Errorf("%w: block at %d has capacity %d", ErrCorrupted, b, c)
	}
	return c, nil
}

func (a *Allocator) putBlock(b, capacity uint64, length, flags uint32) {
	h := a.data[b : b+blockHeaderSize]
	binary.LittleEndian.PutUint64(h[0:], capacity)
	binary.LittleEndian.PutUint32(h[8:], length)
	binary.LittleEndian.PutUint32(h[12:], flags)
}

func (a *Allocator) setCap(b, capacity uint64) {
	binary.LittleEndian.PutUint64(a.data[b:], capacity)
}

func (a *Allocator) blockCap(b uint64) uint64 {
	return binary.LittleEndian.Uint64(a.data[b:])
}

func (a *Allocator) blockLen(b uint64) uint32 {
	return binary.LittleEndian.Uint32(a.data[b+8:])
}

func (a *Allocator) blockFlags(b uint64) uint32 {
	return binary.LittleEndian.Uint32(a.data[b+12:])
}

func (a *Allocator) blockEnd(b uint64) uint64 {
	return b + blockHeaderSize + a.blockCap(b)
}

func (a *Allocator) payload(b uint64) []byte {
	start := b + blockHeaderSize
	return a.data[start : start+a.blockCap(b)]
}

func alignUp(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}
