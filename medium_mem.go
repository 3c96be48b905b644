package qe

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

var errMemClosed = errors.New("memory medium closed")

type memMedium struct {
	records map[uint64][]byte
	order   []uint64 // live offsets, ascending
	last    uint64
	size    int64
	closed  bool
}

// NewMemMedium returns a transient in-memory Medium, intended for tests and
// throwaway engines.
func NewMemMedium() Medium {
	return &memMedium{records: make(map[uint64][]byte)}
}

func (m *memMedium) Alloc(size int) (uint64, error) {
	if m.closed {
		return 0, errMemClosed
	}
	if size <= 0 {
		return 0, fmt.Errorf("invalid allocation size %d", size)
	}
	m.last++
	off := m.last
	m.records[off] = make([]byte, size)
	m.order = append(m.order, off)
	m.size += int64(size)
	return off, nil
}

func (m *memMedium) Free(off uint64) error {
	rec, err := m.record(off)
	if err != nil {
		return err
	}
	delete(m.records, off)
	if i, found := slices.BinarySearch(m.order, off); found {
		m.order = slices.Delete(m.order, i, i+1)
	}
	m.size -= int64(len(rec))
	return nil
}

func (m *memMedium) SizeOf(off uint64) (int, error) {
	rec, err := m.record(off)
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

func (m *memMedium) ReadAt(off uint64, buf []byte) (int, error) {
	rec, err := m.record(off)
	if err != nil {
		return 0, err
	}
	n := copy(buf, rec)
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memMedium) WriteAt(off uint64, data []byte) (int, error) {
	rec, err := m.record(off)
	if err != nil {
		return 0, err
	}
	n := copy(rec, data)
	if n < len(data) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (m *memMedium) First() (uint64, error) {
	return m.Next(0)
}

func (m *memMedium) Next(off uint64) (uint64, error) {
	if m.closed {
		return 0, errMemClosed
	}
	i, found := slices.BinarySearch(m.order, off)
	if found {
		i++
	}
	if i >= len(m.order) {
		return 0, nil
	}
	return m.order[i], nil
}

func (m *memMedium) Size() int64 {
	return m.size
}

func (m *memMedium) Close() error {
	m.closed = true
	m.records = nil
	m.order = nil
	return nil
}

func (m *memMedium) record(off uint64) ([]byte, error) {
	if m.closed {
		return nil, errMemClosed
	}
	rec, ok := m.records[off]
	if !ok {
		return nil, fmt.Errorf("no record at offset %d", off)
	}
	return rec, nil
}
