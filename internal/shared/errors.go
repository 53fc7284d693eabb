package shared

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds shared by every module. Module errors wrap exactly one of these so
// transports can classify a failure with errors.Is.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a reference that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation that is not legal from the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrPrecondition indicates a business rule blocking the operation.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConflict indicates a concurrent write; the operation may be retried.
	ErrConflict = errors.New("conflict")
)

// KindError is a module error classified under one of the shared kinds.
type KindError struct {
	kind error
	msg  string
}

// NewKindError builds an error that reports msg and unwraps to kind.
func NewKindError(kind error, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string { return e.msg }

// Unwrap exposes the kind.
func (e *KindError) Unwrap() error { return e.kind }

// IsRetryable reports whether err is a conflict worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// KindOf returns the shared kind of err, or nil for internal failures.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrInvalidState, ErrPrecondition, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// FieldErrors collects validation messages keyed by field path.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap classifies field errors as validation failures.
func (f FieldErrors) Unwrap() error { return ErrValidation }
