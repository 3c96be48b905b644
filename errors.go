package qe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed            = errors.New("engine closed")
	ErrNoIndex           = errors.New("no index defined, record would be unreachable")
	ErrSerializeFailed   = errors.New("serialize failed")
	ErrDeserializeFailed = errors.New("deserialize failed")
	ErrAllocFailed       = errors.New("medium allocation failed")
	ErrWriteFailed       = errors.New("medium write failed")
	ErrReadShort         = errors.New("medium read short")
	ErrDuplicateIndex    = errors.New("duplicate index")
	ErrIndexInitFailed   = errors.New("index initialization failed")
)

type RecordError struct {
	Off  uint64
	Data []byte
	Msg  string
	Err  error
}

func recordErrf(off uint64, data []byte, err error, format string, args ...any) error {
	return &RecordError{off, data, fmt.Sprintf(format, args...), err}
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	var buf strings.Builder
	fmt.Fprintf(&buf, "qe: record @%d: %s", e.Off, e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	if e.Data != nil {
		n := len(e.Data)
		if n <= prefixLen+suffixLen {
			fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
		} else {
			fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
		}
	}
	return buf.String()
}

type IndexError struct {
	Index string
	Msg   string
	Err   error
}

func indexErrf(name string, err error, format string, args ...any) error {
	return &IndexError{name, fmt.Sprintf(format, args...), err}
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Error() string {
	var buf strings.Builder
	buf.WriteString("qe: index ")
	buf.WriteString(e.Index)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
