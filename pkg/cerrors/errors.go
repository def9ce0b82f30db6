// Package cerrors defines the typed error vocabulary shared by every
// collabcore layer, from the KV store up through the data-model adapters.
package cerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error so callers can branch on failure mode without
// string-matching messages.
type Kind int

const (
	KindNotFound Kind = iota
	KindAlreadyExists
	KindInvalidKey
	KindSerialization
	KindBackend
	KindContended
	KindTimeout
	KindTransportClosed
	KindParentNotFound
	KindBlockNotFound
	KindPageIDEmpty
	KindTextActionParams
	KindUndoNotEnabled
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidKey:
		return "invalid_key"
	case KindSerialization:
		return "serialization"
	case KindBackend:
		return "backend"
	case KindContended:
		return "contended"
	case KindTimeout:
		return "timeout"
	case KindTransportClosed:
		return "transport_closed"
	case KindParentNotFound:
		return "parent_not_found"
	case KindBlockNotFound:
		return "block_not_found"
	case KindPageIDEmpty:
		return "page_id_empty"
	case KindTextActionParams:
		return "text_action_params"
	case KindUndoNotEnabled:
		return "undo_not_enabled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error that wraps an optional cause. Cause is
// preserved through Unwrap so errors.Is/errors.As keep working across
// layers, and Error.Error() folds in the cause's message the way
// github.com/pkg/errors does for WithMessage chains.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.cause.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, cerrors.New(cerrors.KindNotFound, "")) style checks,
// or more idiomatically cerrors.HasKind(err, cerrors.KindNotFound).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// New builds a kind-tagged error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause, preserving it
// via errors.Unwrap. It uses github.com/pkg/errors.WithStack when the
// cause does not already carry a stack trace, so Backend/Internal errors
// retain the origin of a low-level failure (bbolt, grpc, json) as they
// cross package boundaries.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	if _, ok := cause.(stackTracer); !ok {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// HasKind reports whether err is (or wraps) a *Error with the given kind.
func HasKind(err error, kind Kind) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}

// Cause unwraps to the innermost non-*Error cause, mirroring
// github.com/pkg/errors.Cause for callers that log the root failure.
func Cause(err error) error {
	for err != nil {
		if ce, ok := err.(*Error); ok && ce.cause != nil {
			err = ce.cause
			continue
		}
		if c, ok := err.(interface{ Cause() error }); ok && c.Cause() != nil {
			err = c.Cause()
			continue
		}
		return err
	}
	return err
}
