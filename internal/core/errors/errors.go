package errors

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported     ErrorCode = "NOT_SUPPORTED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeCancelled        ErrorCode = "CANCELLED"
	CodeNotReady         ErrorCode = "NOT_READY"
	CodeDisposed         ErrorCode = "DISPOSED"
	CodeIO               ErrorCode = "IO_ERROR"
)

// Sentinels for errors.Is checks. DomainErrors with the matching code
// compare equal to these regardless of message or context.
var (
	ErrCancelled    = &DomainError{Code: CodeCancelled, Message: "operation cancelled"}
	ErrNotReady     = &DomainError{Code: CodeNotReady, Message: "value not ready"}
	ErrDisposed     = &DomainError{Code: CodeDisposed, Message: "object disposed"}
	ErrNotSupported = &DomainError{Code: CodeNotSupported, Message: "operation not supported"}
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxModule    = "module"
	CtxMoniker   = "moniker"
	CtxContext   = "context"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError sentinel carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t == ErrCancelled || t == ErrNotReady || t == ErrDisposed || t == ErrNotSupported)
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// Cancelled converts a context error into a CANCELLED domain error that still
// unwraps to context.Canceled or context.DeadlineExceeded.
func Cancelled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return &DomainError{Code: CodeCancelled, Message: "operation cancelled", Err: err}
}

// Disposed reports use of a closed object.
func Disposed(what string) error {
	return &DomainError{Code: CodeDisposed, Message: what + " is disposed"}
}

func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
