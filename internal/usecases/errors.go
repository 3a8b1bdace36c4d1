// Package usecases implements the payment reconciliation engine: the ledger
// query client, the synchronous transaction validator, the orphan scanner,
// the recovery workflow and the membership activator.
//
// This file centralizes the error taxonomy. Every failure a caller may need
// to distinguish carries an ErrorKind, so handlers map errors to responses by
// kind instead of matching message strings.
package usecases

import (
	"errors"
	"fmt"
)

// ErrorKind tags a PaymentError with its taxonomy class.
type ErrorKind int

const (
	// KindValidation covers malformed or missing input; safe to show the user.
	KindValidation ErrorKind = iota
	// KindConflict covers already-processed / already-paid outcomes.
	KindConflict
	// KindUnconfirmed is returned for transfers not yet included in a block.
	KindUnconfirmed
	// KindChainQuery covers ledger provider failures; detail stays server-side.
	KindChainQuery
	// KindStorage covers database failures after which a rollback is guaranteed.
	KindStorage
	// KindConfiguration covers missing payment configuration.
	KindConfiguration
)

// PaymentError is the tagged error type for the reconciliation paths.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error { return e.Err }

func NewValidationError(format string, args ...any) *PaymentError {
	return &PaymentError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(message string) *PaymentError {
	return &PaymentError{Kind: KindConflict, Message: message}
}

func NewUnconfirmedError(message string) *PaymentError {
	return &PaymentError{Kind: KindUnconfirmed, Message: message}
}

func NewChainQueryError(err error) *PaymentError {
	return &PaymentError{Kind: KindChainQuery, Message: "Failed to query transaction from chain", Err: err}
}

func NewStorageError(err error) *PaymentError {
	return &PaymentError{Kind: KindStorage, Message: "Storage operation failed", Err: err}
}

func NewConfigurationError(message string) *PaymentError {
	return &PaymentError{Kind: KindConfiguration, Message: message}
}

// KindOf extracts the taxonomy kind of err. Unrecognized errors are treated
// as storage failures, the conservative default.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindStorage
}

// UserMessage returns the client-safe message for err. Chain query and
// storage failures deliberately collapse to generic text.
func UserMessage(err error) string {
	if errors.Is(err, ErrCaseNotFound) {
		return "Recovery case not found"
	}
	if errors.Is(err, ErrUserNotFound) {
		return "User not found"
	}

	var pe *PaymentError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindChainQuery:
			return "Failed to query transaction from chain"
		case KindStorage:
			return "Internal error"
		default:
			return pe.Message
		}
	}
	return "Internal error"
}

// Lookup sentinels.
var (
	// ErrCaseNotFound indicates the requested recovery case does not exist.
	ErrCaseNotFound = errors.New("recovery case not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)
