package qe

import (
	"testing"
)

func TestComparisonsPurgeHydratedRecords(t *testing.T) {
	e, codec := setup(t, NewMemMedium())
	ensure(e.AddIndex("nam", byName))
	ensure(e.AddIndex("dat", byData))
	for _, name := range []string{"m", "c", "x", "a", "p", "q"} {
		ensure(e.Set(&entry{name, name + name}))
	}
	must(e.Delete(&entry{Name: "c"}))

	if codec.decoded == 0 {
		t.Fatalf("no records were hydrated")
	}
	deepEqual(t, codec.outstanding(), 0)
	deepEqual(t, e.Stats().Hydrations, uint64(codec.decoded))
}

// An unreadable record compares as equal to anything. This masks medium
// corruption during lookups and writes; the behavior is kept on purpose so
// that container operations never abort half way, and it is observable
// through Stats.CompareFailures.
func TestUnreadableRecordComparesEqual(t *testing.T) {
	m := newFaultyMedium()
	e, codec := setup(t, m)
	ensure(e.AddIndex("nam", byName))
	ensure(e.Set(&entry{"a", "1"}))
	ensure(e.Set(&entry{"b", "2"}))
	ensure(e.Set(&entry{"c", "3"}))

	bad := m.allocated[1]
	m.shortRead[bad] = true

	// the binary search probes "b" first, which now matches any pattern, and
	// the caller-facing read of that record reports the short read
	_, found, err := e.Get("nam", &entry{Name: "zzz"})
	iserr(t, err, ErrReadShort)
	deepEqual(t, found, false)
	if e.Stats().CompareFailures == 0 {
		t.Errorf("CompareFailures = 0, wanted the tie to be counted")
	}
	deepEqual(t, codec.outstanding(), 0)
}

func TestUnreadableRecordIsReplacedOnSet(t *testing.T) {
	m := newFaultyMedium()
	e, _ := setup(t, m)
	ensure(e.AddIndex("nam", byName))
	ensure(e.Set(&entry{"b", "2"}))

	bad := m.allocated[0]
	m.shortRead[bad] = true

	// "zzz" ties with the unreadable record and replaces it
	ensure(e.Set(&entry{"zzz", "9"}))
	deepEqual(t, e.IndexLen("nam"), 1)
	deepEqual(t, m.freed, []uint64{bad})
	if e.Stats().CompareFailures == 0 {
		t.Errorf("CompareFailures = 0, wanted the tie to be counted")
	}

	m.shortRead[bad] = false
	deepEqual(t, *get(t, e, "nam", &entry{Name: "zzz"}), entry{"zzz", "9"})
}

func TestUndecodableRecordComparesEqual(t *testing.T) {
	m := newFaultyMedium()
	e, _ := setup(t, m)
	ensure(e.AddIndex("nam", byName))
	ensure(e.Set(&entry{"b", "2"}))

	// overwrite the stored bytes with something the codec rejects
	off := m.allocated[0]
	must(m.WriteAt(off, []byte("bad")))

	// probed once by the search and once more to confirm the match
	_, _, err := e.Get("nam", &entry{Name: "a"})
	iserr(t, err, ErrDeserializeFailed)
	deepEqual(t, e.Stats().CompareFailures, uint64(2))
}

func TestEvictingPatternIsNoop(t *testing.T) {
	m := newFaultyMedium()
	e, _ := setup(t, m)
	ensure(e.AddIndex("nam", byName))
	idx := e.lookupIndex("nam")

	idx.evict(patternRef[*entry]{&entry{Name: "pizza"}})
	deepEqual(t, len(m.freed), 0)
	deepEqual(t, e.Stats().Evictions, uint64(0))
}
