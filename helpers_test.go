package qe

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

type entry struct {
	Name string
	Data string
}

// entryCodec stores entries as "name\ndata" and keeps track of every record
// it decodes and every record the engine purges.
type entryCodec struct {
	decoded       int
	purged        []*entry
	failSerialize bool
}

func (c *entryCodec) Serialize(e *entry) ([]byte, error) {
	if c.failSerialize {
		return nil, errors.New("serializer refused")
	}
	return []byte(e.Name + "\n" + e.Data), nil
}

func (c *entryCodec) Deserialize(data []byte) (*entry, error) {
	name, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return nil, fmt.Errorf("no separator in %q", data)
	}
	c.decoded++
	return &entry{string(name), string(rest)}, nil
}

func (c *entryCodec) Purge(e *entry) {
	c.purged = append(c.purged, e)
}

// outstanding is the number of decoded records that were not purged, i.e.
// the ones handed to the caller.
func (c *entryCodec) outstanding() int {
	return c.decoded - len(c.purged)
}

func (c *entryCodec) wasPurged(e *entry) bool {
	return slices.Contains(c.purged, e)
}

var (
	byName = CompareFunc[*entry](func(a, b *entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	byData = CompareFunc[*entry](func(a, b *entry) int {
		return strings.Compare(a.Data, b.Data)
	})
)

// faultyMedium wraps a Medium, recording calls and injecting failures.
type faultyMedium struct {
	Medium

	allocated  []uint64
	freed      []uint64
	shortWrite bool
	shortRead  map[uint64]bool
	failNext   bool
}

func newFaultyMedium() *faultyMedium {
	return &faultyMedium{Medium: NewMemMedium(), shortRead: make(map[uint64]bool)}
}

func (m *faultyMedium) Alloc(size int) (uint64, error) {
	off, err := m.Medium.Alloc(size)
	if err == nil {
		m.allocated = append(m.allocated, off)
	}
	return off, err
}

func (m *faultyMedium) Free(off uint64) error {
	m.freed = append(m.freed, off)
	return m.Medium.Free(off)
}

func (m *faultyMedium) WriteAt(off uint64, data []byte) (int, error) {
	if m.shortWrite {
		return m.Medium.WriteAt(off, data[:len(data)/2])
	}
	return m.Medium.WriteAt(off, data)
}

func (m *faultyMedium) ReadAt(off uint64, buf []byte) (int, error) {
	if m.shortRead[off] {
		return m.Medium.ReadAt(off, buf[:len(buf)/2])
	}
	return m.Medium.ReadAt(off, buf)
}

func (m *faultyMedium) Next(off uint64) (uint64, error) {
	if m.failNext {
		return 0, errors.New("medium iteration failed")
	}
	return m.Medium.Next(off)
}

func setup(t testing.TB, m Medium) (*Engine[*entry], *entryCodec) {
	codec := &entryCodec{}
	e := New[*entry](m, codec, testOptions(t))
	t.Cleanup(func() { e.Close() })
	return e, codec
}

func setupFile(t testing.TB) (*Engine[*entry], *entryCodec, string) {
	path := filepath.Join(t.TempDir(), "pizza.db")
	codec := &entryCodec{}
	e := must(Open[*entry](path, codec, testOptions(t)))
	t.Cleanup(func() { e.Close() })
	return e, codec, path
}

func testOptions(t testing.TB) Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})),
	}
}

func mediumOffsets(t testing.TB, m Medium) []uint64 {
	t.Helper()
	var out []uint64
	for off := must(m.First()); off != 0; off = must(m.Next(off)) {
		out = append(out, off)
	}
	return out
}

func mediumRecords(t testing.TB, m Medium) []string {
	t.Helper()
	var out []string
	for _, off := range mediumOffsets(t, m) {
		buf := make([]byte, must(m.SizeOf(off)))
		must(m.ReadAt(off, buf))
		out = append(out, strings.ReplaceAll(string(buf), "\n", "/"))
	}
	return out
}

func get(t testing.TB, e *Engine[*entry], index string, pattern *entry) *entry {
	t.Helper()
	rec, found, err := e.Get(index, pattern)
	if err != nil {
		t.Fatalf("Get(%s, %v) failed: %v", index, *pattern, err)
	}
	if !found {
		return nil
	}
	return rec
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Fatalf("** got nil %T, wanted non-nil", a)
	}
}

func iserr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
