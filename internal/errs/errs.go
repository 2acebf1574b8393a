// Package errs holds the error taxonomy shared by the lobby core. Every error
// is recoverable: callers branch with errors.Is and keep going.
package errs

import "errors"

var ErrConflict = errors.New("conflict")
var ErrUnreachable = errors.New("peer unreachable")
var ErrNotFound = errors.New("not found")
var ErrValidation = errors.New("validation failed")

// Code is a machine-readable error code sent to clients.
type Code string

const (
	CodeUnknown     Code = "UNKNOWN"
	CodeConflict    Code = "CONFLICT"
	CodeUnreachable Code = "UNREACHABLE"
	CodeNotFound    Code = "NOT_FOUND"
	CodeValidation  Code = "VALIDATION"
)

// CodeOf maps err to its Code. A nil error has no code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnreachable):
		return CodeUnreachable
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeUnknown
	}
}
