package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when the requested resource does not exist.
type NotFoundError struct {
	Resource string
}

func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

func (err NotFoundError) Error() string {
	return err.Resource + " not found"
}

// ForbiddenError is returned when the caller lacks the capability for an operation.
type ForbiddenError struct {
	Reason string
}

func NewForbiddenError(reason string) error {
	return &ForbiddenError{Reason: reason}
}

func (err ForbiddenError) Error() string {
	if err.Reason == "" {
		return "permission denied"
	}
	return err.Reason
}

// ConflictError is returned on duplicate resources or when optimistic writes keep losing.
type ConflictError struct {
	Reason string
}

func NewConflictError(reason string) error {
	return &ConflictError{Reason: reason}
}

func (err ConflictError) Error() string {
	return err.Reason
}

// StoreUnavailableError wraps a storage failure.
type StoreUnavailableError struct {
	Err error
}

func NewStoreUnavailableError(err error, msg string) error {
	return &StoreUnavailableError{Err: errors.Wrap(err, msg)}
}

func (err StoreUnavailableError) Error() string {
	return "store unavailable: " + err.Err.Error()
}

func (err StoreUnavailableError) Unwrap() error {
	return err.Err
}

// ErrVersionMismatch is returned by repositories when a compare-and-swap write loses against a concurrent writer.
var ErrVersionMismatch = errors.New("record version mismatch")

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
