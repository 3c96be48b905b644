package qe

import (
	"errors"
	"strings"
	"testing"
)

func TestRecordErrorMessage(t *testing.T) {
	err := recordErrf(80, []byte{0xAA, 0xBB}, ErrReadShort, "read %d of %d bytes", 2, 5)
	deepEqual(t, err.Error(), "qe: record @80: read 2 of 5 bytes: medium read short: (2) aabb")
	if !errors.Is(err, ErrReadShort) {
		t.Errorf("errors.Is(ErrReadShort) = false")
	}

	long := make([]byte, 200)
	msg := recordErrf(8, long, nil, "cannot decode").Error()
	if !strings.Contains(msg, "(200) ") || !strings.Contains(msg, "...") {
		t.Errorf("long data not abbreviated: %s", msg)
	}

	deepEqual(t, recordErrf(8, nil, nil, "x").Error(), "qe: record @8: x")
}

func TestIndexErrorMessage(t *testing.T) {
	deepEqual(t, indexErrf("nam", ErrDuplicateIndex, "").Error(), "qe: index nam: duplicate index")
	deepEqual(t, indexErrf("nam", ErrIndexInitFailed, "nil comparator").Error(), "qe: index nam: nil comparator: index initialization failed")
}
