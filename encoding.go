package qe

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec stores *R records as MessagePack, honouring `msgpack` struct
// tags. Map keys are sorted so equal records always encode to equal bytes.
type MsgpackCodec[R any] struct {
	// OnPurge, if set, is called for every record the engine purges.
	OnPurge func(rec *R)
}

var errNilRecord = errors.New("nil record")

func (c MsgpackCodec[R]) Serialize(rec *R) ([]byte, error) {
	if rec == nil {
		return nil, errNilRecord
	}
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.ResetDict(&buf, nil)
	enc.SetSortMapKeys(true)
	err := enc.Encode(rec)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", rec, err)
	}
	return buf.Bytes(), nil
}

func (c MsgpackCodec[R]) Deserialize(data []byte) (*R, error) {
	rec := new(R)
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(rec)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode msgpack into %T: %w", rec, err)
	}
	return rec, nil
}

func (c MsgpackCodec[R]) Purge(rec *R) {
	if c.OnPurge != nil {
		c.OnPurge(rec)
	}
}
