package zaps

import (
	"errors"
	"fmt"
)

// ErrAborted signals that the user declined to sign the zap request. It is
// not a failure: the pipeline delivers nothing and surfaces no message.
var ErrAborted = errors.New("zap request signing aborted")

// FailureKind classifies terminal pipeline failures. None are retried
// automatically; a retry is a new invocation.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNoPaymentIdentity
	FailureIdentityFetch
	FailureAmountTooSmall
	FailureAmountTooLarge
	FailureSigning
	FailureInvoiceRequest
	FailureAmountMismatch
)

// String returns the failure kind name for logs.
func (k FailureKind) String() string {
	switch k {
	case FailureNoPaymentIdentity:
		return "no_payment_identity"
	case FailureIdentityFetch:
		return "identity_fetch_failed"
	case FailureAmountTooSmall:
		return "amount_too_small"
	case FailureAmountTooLarge:
		return "amount_too_large"
	case FailureSigning:
		return "signing_failed"
	case FailureInvoiceRequest:
		return "invoice_request_failed"
	case FailureAmountMismatch:
		return "amount_mismatch"
	default:
		return "none"
	}
}

// Error is a terminal pipeline failure carrying a single human-readable
// message for the caller. The wrapped cause is for logs only.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the message to surface to the user.
func (e *Error) UserMessage() string {
	return e.Message
}

func failf(kind FailureKind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// FailureKindOf extracts the failure kind from an error returned by the
// pipeline, or FailureNone for nil / ErrAborted / foreign errors.
func FailureKindOf(err error) FailureKind {
	var zapErr *Error
	if errors.As(err, &zapErr) {
		return zapErr.Kind
	}
	return FailureNone
}
