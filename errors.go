// Package m6 ties together the storage and retrieval engine described by
// the module's component packages (bitstream, carray, page, btree, lexicon,
// docstore, tokenizer, query, databank, ingest). This file holds the typed
// error vocabulary shared by all of them (see spec §7).
package m6

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, mirroring the six categories of
// the core's error handling design.
type Kind int

const (
	// KindCorruption signals an on-disk invariant violated by data that was
	// supposed to have been written by a conforming implementation: bad
	// signature, impossible page tag, a posting list that fails to decode.
	KindCorruption Kind = iota + 1
	// KindInvariant signals a caller violated an API contract: zero doc-nr,
	// unsorted posting list, an oversized key, a write against a closed
	// databank.
	KindInvariant
	// KindNotFound signals a typed "absent" result where the caller can't
	// naturally use a zero value (e.g. Fetch by id).
	KindNotFound
	// KindIO signals a read/write/rename/truncate failure against the
	// underlying filesystem.
	KindIO
	// KindParse signals a query string failed to parse.
	KindParse
	// KindCancelled signals cooperative cancellation of a long operation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindCorruption:
		return "corruption"
	case KindInvariant:
		return "invariant"
	case KindNotFound:
		return "not found"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every package in this
// module. Op names the failing operation (e.g. "btree.Insert",
// "docstore.Fetch"); Kind classifies the failure; Err, when present, is the
// underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Op   string
	Kind Kind
	Err  error

	// Pos is set for KindParse errors: the byte offset in the query string
	// where parsing failed.
	Pos int
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error with the given operation, kind and cause.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// NewParse builds a KindParse error carrying a byte position.
func NewParse(op string, pos int, msg string) error {
	return &Error{Op: op, Kind: KindParse, Err: errors.New(msg), Pos: pos}
}

// Of reports the Kind of err, or 0 if err is nil or not an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
