package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrPermissionDenied is returned when an actor lacks the capability for an operation.
var ErrPermissionDenied = errors.New("permission denied")

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
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// DeliveryError reports an e-mail the provider did not accept for one recipient.
type DeliveryError struct {
	Recipient string
	Code      int
	Message   string
}

func (err DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: [%d] %s", err.Recipient, err.Code, err.Message)
}

// DeliveryErrors collects the failures of a batch send.
type DeliveryErrors []DeliveryError

func (errs DeliveryErrors) Error() string {
	recipients := make([]string, 0, len(errs))
	for _, e := range errs {
		recipients = append(recipients, e.Recipient)
	}
	return fmt.Sprintf("%d deliveries failed (%s)", len(errs), strings.Join(recipients, ", "))
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
