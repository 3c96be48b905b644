// Package sortedset implements an in-memory ordered set driven by a caller
// comparator.
//
// Elements live in a sorted slice; lookups are binary searches, so a Set
// performs O(log n) comparisons per operation. The comparator may be
// arbitrarily expensive (it is allowed to do I/O), which is why Set never
// compares more than it has to and never caches anything about elements.
//
// Elements that leave the set are handed to the eviction hook: when Put
// replaces an equal element, when Delete removes one, and for every remaining
// element when Destroy runs while the hook is still attached.
package sortedset

import (
	"iter"
	"slices"
)

type Set[E any] struct {
	items []E
	cmp   func(a, b E) int
	evict func(E)
}

// New returns an empty set ordered by cmp. evict may be nil.
func New[E any](cmp func(a, b E) int, evict func(E)) *Set[E] {
	if cmp == nil {
		panic("sortedset: nil comparator")
	}
	return &Set[E]{cmp: cmp, evict: evict}
}

// SetEvict replaces the eviction hook; nil detaches it.
func (s *Set[E]) SetEvict(evict func(E)) {
	s.evict = evict
}

func (s *Set[E]) Len() int {
	return len(s.items)
}

// Put inserts e, replacing an element that compares equal to it. The replaced
// element is passed to the eviction hook after e has taken its place.
func (s *Set[E]) Put(e E) (replaced bool) {
	i, found := s.find(e)
	if found {
		old := s.items[i]
		s.items[i] = e
		s.fire(old)
		return true
	}
	s.items = slices.Insert(s.items, i, e)
	return false
}

// Get returns the element that compares equal to pattern.
func (s *Set[E]) Get(pattern E) (E, bool) {
	i, found := s.find(pattern)
	if !found {
		var zero E
		return zero, false
	}
	return s.items[i], true
}

// Delete removes the element that compares equal to pattern and passes it to
// the eviction hook. The pattern itself is never evicted.
func (s *Set[E]) Delete(pattern E) bool {
	i, found := s.find(pattern)
	if !found {
		return false
	}
	old := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	s.fire(old)
	return true
}

// All iterates over the elements in order. The set must not be modified
// during iteration.
func (s *Set[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		for _, e := range s.items {
			if !yield(e) {
				return
			}
		}
	}
}

// Destroy empties the set. If the eviction hook is attached, it runs for every
// element, in order.
func (s *Set[E]) Destroy() {
	items := s.items
	s.items = nil
	if s.evict == nil {
		return
	}
	for _, e := range items {
		s.evict(e)
	}
}

func (s *Set[E]) find(e E) (int, bool) {
	return slices.BinarySearchFunc(s.items, e, s.cmp)
}

func (s *Set[E]) fire(e E) {
	if s.evict != nil {
		s.evict(e)
	}
}
