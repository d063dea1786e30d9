package storage

import "fmt"

// ErrorKind is the platform-independent error taxonomy of §7, surfaced by
// CS and propagated up through SW and the HTTP layer.
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "Validation"
	ErrKindNotFound    ErrorKind = "NotFound"
	ErrKindConflict    ErrorKind = "Conflict"
	ErrKindAuth        ErrorKind = "Auth"
	ErrKindRateLimited ErrorKind = "RateLimited"
	ErrKindExternal    ErrorKind = "External"
	ErrKindInternal    ErrorKind = "Internal"
)

// StoreError is a typed, classified error returned by the Catalog Store.
type StoreError struct {
	Kind    ErrorKind
	Message string
	Fields  []string // offending fields, for ErrKindValidation
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newValidationError(message string, fields ...string) *StoreError {
	return &StoreError{Kind: ErrKindValidation, Message: message, Fields: fields}
}

func newConflictError(message string) *StoreError {
	return &StoreError{Kind: ErrKindConflict, Message: message}
}

func newNotFoundError(message string, fields ...string) *StoreError {
	return &StoreError{Kind: ErrKindNotFound, Message: message, Fields: fields}
}

func newInternalError(message string, err error) *StoreError {
	return &StoreError{Kind: ErrKindInternal, Message: message, Err: err}
}
