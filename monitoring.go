package qe

import (
	"encoding/json"
	"fmt"
)

type Stats struct {
	Indices    int
	Records    int   // live records held by at least one index
	MediumSize int64 // 0 if the medium does not report it

	Sets            uint64
	Gets            uint64
	Deletes         uint64
	Hydrations      uint64
	CompareFailures uint64 // comparisons that treated an unreadable record as equal
	Evictions       uint64
	FreeFailures    uint64
}

type IndexStats struct {
	Name    string
	Entries int
}

func (e *Engine[T]) Stats() Stats {
	s := Stats{
		Indices:         len(e.indices),
		Records:         len(e.refs),
		Sets:            e.sets.Load(),
		Gets:            e.gets.Load(),
		Deletes:         e.deletes.Load(),
		Hydrations:      e.hydrations.Load(),
		CompareFailures: e.compareFailures.Load(),
		Evictions:       e.evictions.Load(),
		FreeFailures:    e.freeFailures.Load(),
	}
	if sz, ok := e.medium.(sizer); ok && !e.closed {
		s.MediumSize = sz.Size()
	}
	return s
}

func (e *Engine[T]) IndexStats() []IndexStats {
	result := make([]IndexStats, len(e.indices))
	for i, idx := range e.indices {
		result[i] = IndexStats{idx.name, idx.set.Len()}
	}
	return result
}

func (s Stats) String() string {
	return fmt.Sprintf("indices = %d, records = %d, medium_size = %d, sets = %d, gets = %d, deletes = %d, hydrations = %d, compare_failures = %d, evictions = %d, free_failures = %d",
		s.Indices, s.Records, s.MediumSize, s.Sets, s.Gets, s.Deletes, s.Hydrations, s.CompareFailures, s.Evictions, s.FreeFailures)
}

func loggableRecord(rec any) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("<%T: %v>", rec, err)
	}
	return string(raw)
}
