package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// InvalidArgumentError marks a caller mistake (missing field, bad enum value,
// past-dated schedule). Handlers map it to a 400.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewInvalidArgument(field, reason string) error {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// InvalidTransitionError reports a status change not permitted by the
// transition table, carrying both sides so the caller can show them.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// ExternalFailureError wraps a store or send-API failure. In batch dispatch it
// is scoped to a single row, never to the batch.
type ExternalFailureError struct {
	Op  string
	Err error
}

func (e *ExternalFailureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalFailureError) Unwrap() error { return e.Err }

func NewExternalFailure(op string, err error) error {
	return &ExternalFailureError{Op: op, Err: err}
}
