// Package result provides the tagged outcome returned by every external
// collaborator call: a value, an explicit "ran but found nothing", or a failure.
package result

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a Result.
type Kind int

const (
	// KindFailed means the collaborator could not produce an answer.
	KindFailed Kind = iota
	// KindEmpty means the collaborator ran and found nothing.
	KindEmpty
	// KindSuccess means a value is present.
	KindSuccess
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// errUnknown backs Failed results constructed without a reason.
var errUnknown = errors.New("unknown failure")

// Result is Success(value) | Empty | Failed(reason). The zero value is Failed.
type Result[T any] struct {
	kind  Kind
	value T
	err   error
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{kind: KindSuccess, value: v}
}

// Empty reports that the call completed without output.
func Empty[T any]() Result[T] {
	return Result[T]{kind: KindEmpty}
}

// Failed reports that the call did not complete.
func Failed[T any](err error) Result[T] {
	if err == nil {
		err = errUnknown
	}
	return Result[T]{kind: KindFailed, err: err}
}

// FromText classifies a text-producing call: an error is Failed, blank
// output is Empty, anything else is Success with surrounding space trimmed.
func FromText(s string, err error) Result[string] {
	if err != nil {
		return Failed[string](err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty[string]()
	}
	return Success(s)
}

// Kind returns the tag.
func (r Result[T]) Kind() Kind { return r.kind }

// OK reports whether a value is present.
func (r Result[T]) OK() bool { return r.kind == KindSuccess }

// IsEmpty reports whether the call ran and found nothing.
func (r Result[T]) IsEmpty() bool { return r.kind == KindEmpty }

// IsFailed reports whether the call failed.
func (r Result[T]) IsFailed() bool { return r.kind == KindFailed }

// Value returns the value and whether it is present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.kind == KindSuccess
}

// ValueOr returns the value or fallback when none is present.
func (r Result[T]) ValueOr(fallback T) T {
	if r.kind == KindSuccess {
		return r.value
	}
	return fallback
}

// Err returns the failure reason, or nil for Success and Empty.
func (r Result[T]) Err() error {
	if r.kind != KindFailed {
		return nil
	}
	if r.err == nil {
		return errUnknown
	}
	return r.err
}

func (r Result[T]) String() string {
	switch r.kind {
	case KindSuccess:
		return fmt.Sprintf("success(%v)", r.value)
	case KindEmpty:
		return "empty"
	default:
		return fmt.Sprintf("failed(%v)", r.Err())
	}
}
