package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrEditConflict   = errors.New("edit conflict")

	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
	ErrProvider      = errors.New("provider error")
	ErrSignature     = errors.New("signature error")
)

// PaymentError is the error type returned across the payment layer. Kind is
// one of the sentinel errors above so callers can branch with errors.Is.
type PaymentError struct {
	Kind    error
	Message string
	Err     error

	// Temporary marks provider failures that may succeed when retried, such
	// as timeouts or connection resets. Provider declines are never temporary.
	Temporary bool
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *PaymentError) Is(target error) bool {
	return target == e.Kind
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) error {
	return &PaymentError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &PaymentError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &PaymentError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConfigurationError(format string, args ...any) error {
	return &PaymentError{Kind: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

func NewSignatureError(format string, args ...any) error {
	return &PaymentError{Kind: ErrSignature, Message: fmt.Sprintf(format, args...)}
}

func NewProviderError(message string, err error, temporary bool) error {
	return &PaymentError{Kind: ErrProvider, Message: message, Err: err, Temporary: temporary}
}

// ErrorMessage returns the client-facing message of a PaymentError, or the
// plain error text otherwise.
func ErrorMessage(err error) string {
	var pErr *PaymentError
	if errors.As(err, &pErr) {
		return pErr.Message
	}

	return err.Error()
}

// IsTemporary reports whether err is a provider failure worth retrying.
func IsTemporary(err error) bool {
	var pErr *PaymentError
	return errors.As(err, &pErr) && pErr.Temporary
}
