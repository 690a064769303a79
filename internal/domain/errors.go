package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Reconciliation ambiguity that a
// reviewer should resolve is persisted as pending state, not raised; only
// malformed input and explicit-lookup failures surface as errors.
var (
	// ErrNotFound is returned when an explicit id lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrMalformedPayload marks input that cannot be imported; the single
	// offending item is skipped and the batch continues.
	ErrMalformedPayload = errors.New("malformed payload")
)

// AmbiguousError is returned when a selector the caller expected to match
// exactly one row matches several. It is never auto-resolved.
type AmbiguousError struct {
	Kind     string
	Selector string
	Matches  int
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s selector %q matches %d rows; use the database id instead",
		e.Kind, e.Selector, e.Matches)
}

// IsAmbiguous reports whether err is (or wraps) an AmbiguousError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformed reports whether err wraps ErrMalformedPayload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}
