package qe

import "errors"

// Codec turns application records into bytes and back. The codec value is
// the engine-wide context: whatever state the callbacks need lives in it.
type Codec[T any] interface {
	// Serialize encodes rec. An error or an empty result rejects the write.
	Serialize(rec T) ([]byte, error)

	// Deserialize decodes a new record from data. data is only valid for the
	// duration of the call and must not be retained.
	Deserialize(data []byte) (T, error)

	// Purge releases a record produced by Deserialize. The engine purges every
	// record it hydrates for a comparison as soon as the comparison returns;
	// records returned by Get belong to the caller and are never purged.
	Purge(rec T)
}

// Comparator orders records within one index. The comparator value is the
// index-specific context.
type Comparator[T any] interface {
	Compare(a, b T) int
}

// CompareFunc adapts a plain function to Comparator.
type CompareFunc[T any] func(a, b T) int

func (f CompareFunc[T]) Compare(a, b T) int {
	return f(a, b)
}

// Funcs adapts plain functions to Codec. PurgeFunc may be nil.
type Funcs[T any] struct {
	SerializeFunc   func(rec T) ([]byte, error)
	DeserializeFunc func(data []byte) (T, error)
	PurgeFunc       func(rec T)
}

var errNoFunc = errors.New("no function provided")

func (f Funcs[T]) Serialize(rec T) ([]byte, error) {
	if f.SerializeFunc == nil {
		return nil, errNoFunc
	}
	return f.SerializeFunc(rec)
}

func (f Funcs[T]) Deserialize(data []byte) (T, error) {
	if f.DeserializeFunc == nil {
		var zero T
		return zero, errNoFunc
	}
	return f.DeserializeFunc(data)
}

func (f Funcs[T]) Purge(rec T) {
	if f.PurgeFunc != nil {
		f.PurgeFunc(rec)
	}
}
