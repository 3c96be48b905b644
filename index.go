package qe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/andreyvit/qe/sortedset"
)

type index[T any] struct {
	name   string
	cmp    Comparator[T]
	engine *Engine[T]
	set    *sortedset.Set[ref]
}

// AddIndex defines a new index ordered by cmp and fills it from every record
// already on the medium.
//
// The backfill reads and decodes records for each comparison, so AddIndex is
// O(records × log(records)) hydrations and can take a long time on a large
// medium. Records that compare equal under cmp collapse into one entry; the
// record found later in medium order wins.
func (e *Engine[T]) AddIndex(name string, cmp Comparator[T]) error {
	if e.closed {
		return ErrClosed
	}
	i, found := e.findIndex(name)
	if found {
		return indexErrf(name, ErrDuplicateIndex, "")
	}
	if cmp == nil {
		return indexErrf(name, ErrIndexInitFailed, "nil comparator")
	}

	idx := &index[T]{name: name, cmp: cmp, engine: e}
	idx.set = sortedset.New(idx.compare, idx.evict)

	n, err := e.backfill(idx)
	if err != nil {
		e.dropIndex(idx)
		return indexErrf(name, fmt.Errorf("%w: %w", ErrIndexInitFailed, err), "backfill")
	}

	e.indices = slices.Insert(e.indices, i, idx)
	if e.verbose {
		e.logf("qe: INDEX.ADD %s (%d records scanned, %d entries)", name, n, idx.set.Len())
	}
	return nil
}

// RemoveIndex drops the named index. Records stay on the medium even if no
// other index holds them. Removing an unknown index does nothing.
func (e *Engine[T]) RemoveIndex(name string) error {
	if e.closed {
		return ErrClosed
	}
	i, found := e.findIndex(name)
	if !found {
		return nil
	}
	idx := e.indices[i]
	e.indices = slices.Delete(e.indices, i, i+1)
	e.dropIndex(idx)
	if e.verbose {
		e.logf("qe: INDEX.DEL %s", name)
	}
	return nil
}

// Indexes returns the names of all indexes, sorted.
func (e *Engine[T]) Indexes() []string {
	names := make([]string, len(e.indices))
	for i, idx := range e.indices {
		names[i] = idx.name
	}
	return names
}

func (e *Engine[T]) HasIndex(name string) bool {
	return e.lookupIndex(name) != nil
}

// IndexLen returns the number of entries in the named index, or 0 if there is
// no such index.
func (e *Engine[T]) IndexLen(name string) int {
	if idx := e.lookupIndex(name); idx != nil {
		return idx.set.Len()
	}
	return 0
}

func (e *Engine[T]) backfill(idx *index[T]) (int, error) {
	var n int
	off, err := e.medium.First()
	for ; err == nil && off != 0; off, err = e.medium.Next(off) {
		p := e.refs[off]
		if p == nil {
			p = &persistedRef{off: off}
			e.refs[off] = p
		}
		p.holders++
		idx.set.Put(p)
		n++
	}
	return n, err
}

// dropIndex detaches the eviction hook before tearing the container down, so
// that destroying an index never frees records from the medium.
func (e *Engine[T]) dropIndex(idx *index[T]) {
	idx.set.SetEvict(nil)
	for r := range idx.set.All() {
		if p, ok := r.(*persistedRef); ok {
			e.detach(p)
		}
	}
	idx.set.Destroy()
}

func (e *Engine[T]) lookupIndex(name string) *index[T] {
	if i, found := e.findIndex(name); found {
		return e.indices[i]
	}
	return nil
}

func (e *Engine[T]) findIndex(name string) (int, bool) {
	return slices.BinarySearchFunc(e.indices, name, func(idx *index[T], name string) int {
		return strings.Compare(idx.name, name)
	})
}
