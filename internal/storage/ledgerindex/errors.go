package ledgerindex

import (
	"errors"
	"fmt"
)

var (
	ErrLedgerNotFound = errors.New("ledger not found")
	ErrUnknownDriver  = errors.New("unknown ledger index driver")
	ErrClosed         = errors.New("ledger index is closed")
)

// ErrorType classifies index failures.
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeSchema     ErrorType = "schema"
	ErrorTypeQuery      ErrorType = "query"
	ErrorTypeData       ErrorType = "data"
)

// IndexError wraps a failure with the operation that produced it.
type IndexError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledgerindex %s error in %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ledgerindex %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *IndexError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, operation, message string, cause error) *IndexError {
	return &IndexError{Type: t, Operation: operation, Message: message, Cause: cause}
}
