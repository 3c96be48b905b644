package qe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

// The hydration bridge lets an index container order references it cannot
// compare by itself: persisted references are deserialized for the duration
// of a single comparison and purged right after.

type hydrated[T any] struct {
	rec   T
	owned bool
}

func (idx *index[T]) compare(a, b ref) int {
	e := idx.engine
	ha, err := e.hydrate(a)
	if err != nil {
		idx.compareFailed(a, err)
		return 0
	}
	hb, err := e.hydrate(b)
	if err != nil {
		e.purge(ha)
		idx.compareFailed(b, err)
		return 0
	}
	c := idx.cmp.Compare(ha.rec, hb.rec)
	e.purge(ha)
	e.purge(hb)
	return c
}

// compareFailed records a comparison against an unreadable record. The
// comparison reports a tie instead of failing so that a container operation
// is never aborted half way; this hides medium corruption from the caller,
// which is why it is counted and logged.
func (idx *index[T]) compareFailed(r ref, err error) {
	e := idx.engine
	e.compareFailures.Add(1)
	var off uint64
	if p, ok := r.(*persistedRef); ok {
		off = p.off
	}
	e.logger.LogAttrs(context.Background(), slog.LevelWarn, "qe: unreadable record compared as equal",
		slog.String("index", idx.name), slog.Uint64("off", off), slog.Any("err", err))
}

func (idx *index[T]) evict(r ref) {
	if p, ok := r.(*persistedRef); ok {
		idx.engine.release(p)
	}
}

func (e *Engine[T]) hydrate(r ref) (hydrated[T], error) {
	switch r := r.(type) {
	case patternRef[T]:
		return hydrated[T]{rec: r.rec}, nil
	case *persistedRef:
		e.hydrations.Add(1)
		rec, err := e.load(r.off)
		if err != nil {
			return hydrated[T]{}, err
		}
		return hydrated[T]{rec: rec, owned: true}, nil
	default:
		panic(fmt.Errorf("qe: unexpected ref %T", r))
	}
}

func (e *Engine[T]) purge(h hydrated[T]) {
	if h.owned {
		e.codec.Purge(h.rec)
	}
}

// load reads the whole record at off and decodes it into a new instance.
func (e *Engine[T]) load(off uint64) (T, error) {
	var zero T
	size, err := e.medium.SizeOf(off)
	if err != nil {
		return zero, recordErrf(off, nil, fmt.Errorf("%w: %w", ErrReadShort, err), "cannot determine size")
	}

	buf := recordBytesPool.Get().([]byte)
	buf = slices.Grow(buf[:0], size)[:size]
	defer releaseRecordBytes(buf)

	n, err := e.medium.ReadAt(off, buf)
	if n < size || (err != nil && err != io.EOF) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return zero, recordErrf(off, buf[:n], fmt.Errorf("%w: %w", ErrReadShort, err), "read %d of %d bytes", n, size)
	}

	rec, err := e.codec.Deserialize(buf)
	if err != nil {
		return zero, recordErrf(off, buf, fmt.Errorf("%w: %w", ErrDeserializeFailed, err), "cannot decode")
	}
	return rec, nil
}

// release drops one index's hold on p and frees the medium slot once no index
// holds it any more.
func (e *Engine[T]) release(p *persistedRef) {
	e.evictions.Add(1)
	p.holders--
	if p.holders > 0 {
		return
	}
	delete(e.refs, p.off)
	if err := e.medium.Free(p.off); err != nil {
		e.freeFailures.Add(1)
		e.logger.LogAttrs(context.Background(), slog.LevelWarn, "qe: cannot free evicted record",
			slog.Uint64("off", p.off), slog.Any("err", err))
		return
	}
	if e.verbose {
		e.logf("qe: FREE @%d", p.off)
	}
}

// detach drops one index's hold on p without touching the medium. A record
// nobody holds any more stays on the medium and is picked up again by the
// next index backfill.
func (e *Engine[T]) detach(p *persistedRef) {
	p.holders--
	if p.holders <= 0 {
		delete(e.refs, p.off)
	}
}
