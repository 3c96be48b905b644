package qe

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpIndexHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpEntries
	DumpRecords

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the engine state for debugging. DumpRecords hydrates every
// entry, so it reads the whole medium once per index.
func (e *Engine[T]) Dump(f DumpFlags) string {
	var buf strings.Builder
	if e.closed {
		buf.WriteString("CLOSED\n")
		return buf.String()
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(&buf, "stats: %v\n", e.Stats())
	}
	for _, idx := range e.indices {
		e.dumpIndex(&buf, f, idx)
	}
	return buf.String()
}

func (e *Engine[T]) dumpIndex(w *strings.Builder, f DumpFlags, idx *index[T]) {
	if f.Contains(DumpIndexHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d entries)\n", idx.name, idx.set.Len())
	}
	if !f.Contains(DumpEntries) {
		return
	}
	if f.Contains(DumpIndexHeaders) {
		fmt.Fprintln(w, dumpSep2)
	}
	var pos int
	for r := range idx.set.All() {
		pos++
		p := r.(*persistedRef)
		fmt.Fprintf(w, "%s#%d @%d holders=%d", idx.name, pos, p.off, p.holders)
		if f.Contains(DumpRecords) {
			e.dumpRecord(w, p)
		}
		w.WriteByte('\n')
	}
}

func (e *Engine[T]) dumpRecord(w *strings.Builder, p *persistedRef) {
	rec, err := e.load(p.off)
	if err != nil {
		fmt.Fprintf(w, " ERROR: %v", err)
		return
	}
	fmt.Fprintf(w, " %s", loggableRecord(rec))
	e.codec.Purge(rec)
}
