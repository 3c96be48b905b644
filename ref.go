package qe

// ref is what index containers store and search with. It is either a
// *persistedRef (owned by the engine, points at the medium) or a patternRef
// (borrowed from the caller for the duration of one lookup).
type ref interface {
	isRef()
}

// persistedRef identifies a serialized record on the medium. One persistedRef
// exists per live offset and is shared by every index that holds it; holders
// counts those indexes, and the medium slot is freed when the last index
// evicts it.
type persistedRef struct {
	off     uint64
	holders int
}

// patternRef wraps a caller-owned, already hydrated record. It is never stored
// in a container and never purged or freed by the engine.
type patternRef[T any] struct {
	rec T
}

func (*persistedRef) isRef() {}
func (patternRef[T]) isRef() {}
