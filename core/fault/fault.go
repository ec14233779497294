// Package fault defines the error taxonomy shared by the gateway components.
//
// Components wrap one of the sentinel kinds so callers can branch with
// errors.Is regardless of how deep the failure originated.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a missing or invalid required setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport reports a network failure or a non-2xx response.
	ErrTransport = errors.New("transport error")
	// ErrShape reports model output that does not match the expected schema.
	ErrShape = errors.New("shape error")
	// ErrSelection reports an empty candidate set or an unresolvable selection.
	ErrSelection = errors.New("selection error")
	// ErrValidation reports a document rejected before a write.
	ErrValidation = errors.New("validation error")
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("not found")
)

// Error carries a kind, the failing operation and optional debug payload.
type Error struct {
	Kind  error
	Op    string
	Err   error
	Debug any
}

// New returns an Error of the given kind.
func New(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf returns an Error of the given kind with a formatted cause.
func Newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithDebug attaches a payload surfaced to operators on hard stops.
func (e *Error) WithDebug(v any) *Error {
	e.Debug = v
	return e
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Is matches the error kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Debug returns the first debug payload found in the error chain.
func Debug(err error) any {
	var fe *Error
	for err != nil {
		if errors.As(err, &fe) {
			if fe.Debug != nil {
				return fe.Debug
			}
			err = fe.Err
			continue
		}
		return nil
	}
	return nil
}

// Kind returns the sentinel kind of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, k := range []error{ErrConfiguration, ErrValidation, ErrNotFound, ErrSelection, ErrShape, ErrTransport} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
