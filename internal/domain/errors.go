package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the payment core. Compare with errors.Is.
var (
	ErrNotFound          = errors.New("paycore: not found")
	ErrInvalidAmount     = errors.New("paycore: invalid amount")
	ErrInvalidCount      = errors.New("paycore: account count out of range")
	ErrInsufficientFunds = errors.New("paycore: insufficient funds")
	ErrAlreadySettled    = errors.New("paycore: transaction is not pending")
	ErrNotCompleted      = errors.New("paycore: transaction is not completed")
	ErrNotADeposit       = errors.New("paycore: transaction is not a deposit")
	ErrSystemAccount     = errors.New("paycore: operation not allowed on the system account")
	ErrStoreWrite        = errors.New("paycore: ledger store rejected write")
	ErrStoreUnavailable  = errors.New("paycore: ledger store unavailable")

	ErrAccountNotFound  error = &kindError{msg: "paycore: account not found", kind: ErrNotFound}
	ErrTransferNotFound error = &kindError{msg: "paycore: transaction not found", kind: ErrNotFound}
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// BatchFailure names one rejected entry of a batched store write.
type BatchFailure struct {
	Index  int
	Reason string
}

// BatchError reports which entries of a batch the ledger store rejected.
// It matches ErrStoreWrite.
type BatchError struct {
	Failures []BatchFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("#%d %s", f.Index, f.Reason))
	}
	return fmt.Sprintf("%s: %s", ErrStoreWrite.Error(), strings.Join(parts, ", "))
}

func (e *BatchError) Unwrap() error { return ErrStoreWrite }

// IsNotFound reports whether err is a missing account or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBusiness reports whether err is a caller-side rule violation detected
// before any store write.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrNotCompleted) ||
		errors.Is(err, ErrNotADeposit) ||
		errors.Is(err, ErrSystemAccount)
}

// IsRetryable reports whether err is an infrastructure failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
