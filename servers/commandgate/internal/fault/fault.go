// Package fault carries the typed error taxonomy the gate exposes. Policy
// components return booleans and violation lists; the service layer is the
// single place that turns a negative evaluation into one of these errors.
package fault

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

type Error struct {
	Kind    api.ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind api.ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind api.ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind api.ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Authentication(message string) *Error {
	return New(api.ErrorKindAuthentication, message)
}

func Authorization(message string) *Error {
	return New(api.ErrorKindAuthorization, message)
}

func Validation(message string) *Error {
	return New(api.ErrorKindValidation, message)
}

func NotFound(message string) *Error {
	return New(api.ErrorKindNotFound, message)
}

func Store(message string, cause error) *Error {
	return Wrap(api.ErrorKindStore, message, cause)
}

// KindOf extracts the error kind, or empty for unclassified errors.
func KindOf(err error) api.ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func IsKind(err error, kind api.ErrorKind) bool {
	return KindOf(err) == kind
}

// Classify resolves any error to a typed fault. Unclassified errors become
// store faults with their internals hidden behind a generic message, so the
// wire body and the status code always agree on one classification.
func Classify(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(api.ErrorKindStore, "internal error", err)
}

// Body maps any error to the stable wire shape.
func Body(err error) api.ErrorBody {
	fe := Classify(err)
	return api.ErrorBody{Error: true, Message: fe.Message, Kind: fe.Kind}
}

// ConnectCode maps the taxonomy onto connect status codes at the transport
// edge; it never re-derives policy.
func ConnectCode(err error) connect.Code {
	switch Classify(err).Kind {
	case api.ErrorKindAuthentication:
		return connect.CodeUnauthenticated
	case api.ErrorKindAuthorization:
		return connect.CodePermissionDenied
	case api.ErrorKindValidation:
		return connect.CodeInvalidArgument
	case api.ErrorKindNotFound:
		return connect.CodeNotFound
	case api.ErrorKindStore:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
