// Package engine ties the mixer graph, the stream manager, and the
// control/query surface together: it owns the processing tick, the
// snapshot version counter, and command application.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-level error so transport implementations can
// map it to the right wire shape without string matching.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindConflict
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Error is the typed failure every mutating command returns instead of Ok.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func validationErrorf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErrorf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictErrorf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func deviceErrorf(format string, args ...any) error {
	return &Error{Kind: KindDevice, Message: fmt.Sprintf(format, args...)}
}

// AsEngineError extracts *Error from err, if it is one (or wraps one).
func AsEngineError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
