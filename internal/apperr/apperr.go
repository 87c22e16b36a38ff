// Package apperr carries the semantic error taxonomy from spec §7:
// validation, authorization, business-invariant, resource/precondition,
// transient-I/O and cryptographic errors. The automation loop (internal
// /automation) switches on Type to decide retry vs. permanent-abort.
package apperr

import "fmt"

type Type string

const (
	TypeValidation  Type = "validation"
	TypeAuth        Type = "authorization"
	TypeInvariant   Type = "business_invariant"
	TypePrecondition Type = "resource_precondition"
	TypeTransient   Type = "transient_io"
	TypeCrypto      Type = "cryptographic"
)

// AppError is the error type every component in this core returns instead of
// a bare fmt.Errorf, so the automation loop can classify failures without
// string-matching (string matching is still used for the permanent-error set
// in spec §4.10, but only against Msg, never to infer Type).
type AppError struct {
	Type Type
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *AppError {
	return &AppError{Type: TypeValidation, Msg: fmt.Sprintf(format, args...)}
}

func Auth(format string, args ...any) *AppError {
	return &AppError{Type: TypeAuth, Msg: fmt.Sprintf(format, args...)}
}

func Invariant(format string, args ...any) *AppError {
	return &AppError{Type: TypeInvariant, Msg: fmt.Sprintf(format, args...)}
}

func Precondition(format string, args ...any) *AppError {
	return &AppError{Type: TypePrecondition, Msg: fmt.Sprintf(format, args...)}
}

func Transient(err error, format string, args ...any) *AppError {
	return &AppError{Type: TypeTransient, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Crypto(format string, args ...any) *AppError {
	return &AppError{Type: TypeCrypto, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an arbitrary error as internal/transient, matching the teacher's
// NewInternalError(err) convenience constructor.
func Wrap(err error) *AppError {
	return &AppError{Type: TypeTransient, Msg: err.Error(), Err: err}
}

// Is reports whether err is an *AppError of the given Type.
func Is(err error, t Type) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Type == t
}

// Retryable reports whether the automation loop should retry this error
// rather than mark the stage permanently aborted. Validation, auth, business
// invariant and cryptographic errors are never retried per spec §7.
func Retryable(err error) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch ae.Type {
	case TypePrecondition, TypeTransient:
		return true
	default:
		return false
	}
}
