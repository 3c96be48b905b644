package qe

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/andreyvit/qe/palloc"
)

// Engine persists records of type T on a Medium and keeps them reachable
// through named indexes.
//
// An Engine is not safe for concurrent use. Callers that share one between
// goroutines must serialize all calls, e.g. with a mutex per engine.
type Engine[T any] struct {
	medium  Medium
	codec   Codec[T]
	logf    func(format string, args ...any)
	logger  *slog.Logger
	verbose bool

	indices []*index[T] // sorted by name
	refs    map[uint64]*persistedRef

	closed bool

	sets            atomic.Uint64
	gets            atomic.Uint64
	deletes         atomic.Uint64
	hydrations      atomic.Uint64
	compareFailures atomic.Uint64
	evictions       atomic.Uint64
	freeFailures    atomic.Uint64
}

type Options struct {
	// Flags configure the palloc file opened by Open. Ignored by New.
	Flags palloc.Flags

	// InitialSize is the size of a palloc file created by Open.
	InitialSize int

	// Logf receives operation traces when Verbose is set. Defaults to debug
	// messages on Logger.
	Logf    func(format string, args ...any)
	Verbose bool

	// Logger receives warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open opens the palloc file at path, creating it if needed, and returns an
// engine with no indexes over it.
func Open[T any](path string, codec Codec[T], opt Options) (*Engine[T], error) {
	pa, err := palloc.Open(path, palloc.Options{
		Flags:       opt.Flags,
		InitialSize: opt.InitialSize,
	})
	if err != nil {
		return nil, fmt.Errorf("qe: opening %s: %w", path, err)
	}
	return New(pa, codec, opt), nil
}

// New returns an engine with no indexes over m. The engine takes ownership of
// m and closes it on Close.
func New[T any](m Medium, codec Codec[T], opt Options) *Engine[T] {
	if m == nil {
		panic("qe: nil medium")
	}
	if codec == nil {
		panic("qe: nil codec")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logf := opt.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}
	}
	return &Engine[T]{
		medium:  m,
		codec:   codec,
		logf:    logf,
		logger:  logger,
		verbose: opt.Verbose,
		refs:    make(map[uint64]*persistedRef),
	}
}

// Medium returns the underlying storage.
func (e *Engine[T]) Medium() Medium {
	return e.medium
}

// Close drops all indexes and closes the medium. Persisted records stay on the
// medium and become reachable again by adding indexes after reopening. Close
// on a nil or already closed engine does nothing.
func (e *Engine[T]) Close() error {
	if e == nil || e.closed {
		return nil
	}
	e.closed = true
	for _, idx := range e.indices {
		e.dropIndex(idx)
	}
	e.indices = nil
	e.refs = nil
	if err := e.medium.Close(); err != nil {
		return fmt.Errorf("qe: closing: %w", err)
	}
	return nil
}

// Set persists rec and adds it to every index, replacing any record that
// compares equal to it within an index. A replaced record is freed once no
// index holds it any more.
//
// Set fails with ErrNoIndex when there are no indexes, since the record would
// not be reachable.
func (e *Engine[T]) Set(rec T) error {
	if e.closed {
		return ErrClosed
	}
	if len(e.indices) == 0 {
		return ErrNoIndex
	}

	data, err := e.codec.Serialize(rec)
	if err != nil {
		return fmt.Errorf("qe: %w: %w", ErrSerializeFailed, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("qe: %w: empty result", ErrSerializeFailed)
	}

	off, err := e.medium.Alloc(len(data))
	if err != nil {
		return fmt.Errorf("qe: %w: %d bytes: %w", ErrAllocFailed, len(data), err)
	}
	if off == 0 {
		return fmt.Errorf("qe: %w: %d bytes", ErrAllocFailed, len(data))
	}

	n, err := e.medium.WriteAt(off, data)
	if err != nil || n < len(data) {
		if err == nil {
			err = fmt.Errorf("wrote %d of %d bytes", n, len(data))
		}
		// the slot is unreachable from any index, give it back right away
		if ferr := e.medium.Free(off); ferr != nil {
			e.freeFailures.Add(1)
			e.logger.Warn("qe: cannot free record after failed write", "off", off, "err", ferr)
		}
		return recordErrf(off, data, fmt.Errorf("%w: %w", ErrWriteFailed, err), "cannot write")
	}

	p := &persistedRef{off: off}
	e.refs[off] = p
	for _, idx := range e.indices {
		p.holders++
		idx.set.Put(p)
	}
	e.sets.Add(1)

	if e.verbose {
		e.logf("qe: SET @%d (%d bytes) => %d indices", off, len(data), len(e.indices))
	}
	return nil
}

// Get returns the record that compares equal to pattern within the named
// index. The result is a new instance owned by the caller. An unknown index
// or a miss reports found == false with a nil error. The pattern is only
// read, never retained or purged.
func (e *Engine[T]) Get(index string, pattern T) (rec T, found bool, err error) {
	if e.closed {
		return rec, false, ErrClosed
	}
	e.gets.Add(1)

	idx := e.lookupIndex(index)
	if idx == nil {
		if e.verbose {
			e.logf("qe: GET.NOINDEX %s", index)
		}
		return rec, false, nil
	}

	r, ok := idx.set.Get(patternRef[T]{pattern})
	if !ok {
		if e.verbose {
			e.logf("qe: GET.NOTFOUND %s", index)
		}
		return rec, false, nil
	}

	p := r.(*persistedRef)
	rec, err = e.load(p.off)
	if err != nil {
		return rec, false, err
	}
	if e.verbose {
		e.logf("qe: GET %s => @%d", index, p.off)
	}
	return rec, true, nil
}

// Delete removes the record that compares equal to pattern from every index
// that has one. A record is freed from the medium once no index holds it.
// Reports whether any index had a match.
func (e *Engine[T]) Delete(pattern T) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	e.deletes.Add(1)

	pr := patternRef[T]{pattern}
	var deleted bool
	for _, idx := range e.indices {
		if idx.set.Delete(pr) {
			deleted = true
			if e.verbose {
				e.logf("qe: DELETE %s", idx.name)
			}
		}
	}
	if !deleted && e.verbose {
		e.logf("qe: DELETE.NOOP")
	}
	return deleted, nil
}
