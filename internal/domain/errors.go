package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can react without matching messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindDimensionMismatch
	KindLengthMismatch
	KindCorruptIndex
	KindUpstream
	KindUnsupportedFormat
	KindInvalidInput
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindLengthMismatch:
		return "length_mismatch"
	case KindCorruptIndex:
		return "corrupt_index"
	case KindUpstream:
		return "upstream"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindInvalidInput:
		return "invalid_input"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error wraps an error with the operation that failed and its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error. The message is formatted like fmt.Errorf, so
// %w verbs keep the cause reachable.
func E(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
// UnsupportedFormat is reported as its own kind even though it is an
// upstream failure; use IsUpstream to test for both.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsUpstream reports whether err came from an external capability
// (parser, embedder, completer).
func IsUpstream(err error) bool {
	k := KindOf(err)
	return k == KindUpstream || k == KindUnsupportedFormat
}
