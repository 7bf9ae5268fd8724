// Package store defines the ledger store contract the payment core is written
// against, and ships its PostgreSQL and in-memory implementations.
//
// Records are append-only. Accounts carry running pending/posted totals that
// the store maintains atomically with every accepted transfer; transfer
// records are never updated once written.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable marks transport, timeout and circuit-breaker failures.
var ErrUnavailable = errors.New("store: unavailable")

// MaxQueryLimit bounds every query, mirroring the batch size of the ledger.
const MaxQueryLimit = 8190

// TransferFlags select the two-phase behaviour of a transfer record.
type TransferFlags uint16

const (
	// FlagPending reserves the amount in the pending totals of both accounts.
	FlagPending TransferFlags = 1 << iota
	// FlagPostPending settles the transfer named by PendingID.
	FlagPostPending
	// FlagVoidPending releases the reservation of the transfer named by PendingID.
	FlagVoidPending
)

func (f TransferFlags) Has(flag TransferFlags) bool { return f&flag != 0 }

// AccountRecord is the persisted form of an account.
type AccountRecord struct {
	ID             uuid.UUID
	UserData       string
	Ledger         uint32
	Code           uint16
	Flags          uint16
	DebitsPending  int64
	DebitsPosted   int64
	CreditsPending int64
	CreditsPosted  int64
	Timestamp      time.Time
}

// TransferRecord is the persisted form of a transfer. PendingID is uuid.Nil
// unless the record posts or voids an earlier pending transfer. RelatedID
// links a reversing transfer to the one it reverses and is not interpreted by
// the store.
type TransferRecord struct {
	ID              uuid.UUID
	DebitAccountID  uuid.UUID
	CreditAccountID uuid.UUID
	Amount          int64
	PendingID       uuid.UUID
	RelatedID       uuid.UUID
	Ledger          uint32
	Code            uint16
	Flags           TransferFlags
	Timestamp       time.Time
}

// ResultCode is the reason the store rejected one entry of a create call.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultExists
	ResultIDMustNotBeZero
	ResultAmountMustBePositive
	ResultAccountsMustBeDifferent
	ResultFlagsAreMutuallyExclusive
	ResultDebitAccountNotFound
	ResultCreditAccountNotFound
	ResultPendingTransferNotFound
	ResultPendingTransferNotPending
	ResultPendingTransferAlreadyPosted
	ResultPendingTransferAlreadyVoided
	ResultPendingTransferMismatch
	ResultOverflowsDebits
	ResultOverflowsCredits
	ResultRejected
)

var resultNames = map[ResultCode]string{
	ResultOK:                           "ok",
	ResultExists:                       "exists",
	ResultIDMustNotBeZero:              "id_must_not_be_zero",
	ResultAmountMustBePositive:         "amount_must_be_positive",
	ResultAccountsMustBeDifferent:      "accounts_must_be_different",
	ResultFlagsAreMutuallyExclusive:    "flags_are_mutually_exclusive",
	ResultDebitAccountNotFound:         "debit_account_not_found",
	ResultCreditAccountNotFound:        "credit_account_not_found",
	ResultPendingTransferNotFound:      "pending_transfer_not_found",
	ResultPendingTransferNotPending:    "pending_transfer_not_pending",
	ResultPendingTransferAlreadyPosted: "pending_transfer_already_posted",
	ResultPendingTransferAlreadyVoided: "pending_transfer_already_voided",
	ResultPendingTransferMismatch:      "pending_transfer_mismatch",
	ResultOverflowsDebits:              "overflows_debits",
	ResultOverflowsCredits:             "overflows_credits",
	ResultRejected:                     "rejected",
}

func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return "unknown"
}

// CreateResult reports a rejected entry of a create call by its batch index.
type CreateResult struct {
	Index int
	Code  ResultCode
}

// AccountFilter narrows QueryAccounts. Zero fields match everything.
type AccountFilter struct {
	Ledger uint32
	Code   uint16
}

// TransferFilter narrows QueryAccountTransfers. With neither Debits nor
// Credits set both legs match. A non-nil PendingID matches only records that
// post or void that transfer.
type TransferFilter struct {
	Debits    bool
	Credits   bool
	PendingID uuid.UUID
	Code      uint16
}

// LedgerStore is the persistence boundary of the payment core.
//
// A returned error always means the store could not be reached or did not
// answer in time. Business rejections come back as CreateResult entries
// instead. Each create call is all-or-nothing: when an entry is rejected none
// of the batch is applied and the rejected entry is reported.
type LedgerStore interface {
	CreateAccounts(ctx context.Context, accounts []AccountRecord) ([]CreateResult, error)
	// LookupAccount returns nil when no account has the id.
	LookupAccount(ctx context.Context, id uuid.UUID) (*AccountRecord, error)
	// QueryAccounts returns accounts in creation order.
	QueryAccounts(ctx context.Context, filter AccountFilter, limit int) ([]AccountRecord, error)

	CreateTransfers(ctx context.Context, transfers []TransferRecord) ([]CreateResult, error)
	// LookupTransfer returns nil when no transfer has the id.
	LookupTransfer(ctx context.Context, id uuid.UUID) (*TransferRecord, error)
	// QueryAccountTransfers returns transfers touching accountID, newest first.
	QueryAccountTransfers(ctx context.Context, accountID uuid.UUID, filter TransferFilter, limit int) ([]TransferRecord, error)

	Ping(ctx context.Context) error
	Close()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

func (f TransferFilter) matches(accountID uuid.UUID, t TransferRecord) bool {
	debits, credits := f.Debits, f.Credits
	if !debits && !credits {
		debits, credits = true, true
	}
	if !(debits && t.DebitAccountID == accountID) && !(credits && t.CreditAccountID == accountID) {
		return false
	}
	if f.PendingID != uuid.Nil && t.PendingID != f.PendingID {
		return false
	}
	if f.Code != 0 && t.Code != f.Code {
		return false
	}
	return true
}

// checkTransfer validates rec against the ledger rules. For post/void records
// pending is the referenced transfer and resolution the record that already
// settled it, if any. The returned record has its legs, amount, ledger and
// code inherited from the pending transfer where rec left them zero.
func checkTransfer(rec TransferRecord, pending, resolution *TransferRecord) (TransferRecord, ResultCode) {
	if rec.ID == uuid.Nil {
		return rec, ResultIDMustNotBeZero
	}

	settles := rec.Flags.Has(FlagPostPending) || rec.Flags.Has(FlagVoidPending)
	exclusive := 0
	for _, f := range []TransferFlags{FlagPending, FlagPostPending, FlagVoidPending} {
		if rec.Flags.Has(f) {
			exclusive++
		}
	}
	if exclusive > 1 {
		return rec, ResultFlagsAreMutuallyExclusive
	}

	if !settles {
		if rec.PendingID != uuid.Nil {
			return rec, ResultRejected
		}
		if rec.Amount <= 0 {
			return rec, ResultAmountMustBePositive
		}
		if rec.DebitAccountID == rec.CreditAccountID {
			return rec, ResultAccountsMustBeDifferent
		}
		return rec, ResultOK
	}

	switch {
	case pending == nil:
		return rec, ResultPendingTransferNotFound
	case !pending.Flags.Has(FlagPending):
		return rec, ResultPendingTransferNotPending
	case resolution != nil && resolution.Flags.Has(FlagPostPending):
		return rec, ResultPendingTransferAlreadyPosted
	case resolution != nil:
		return rec, ResultPendingTransferAlreadyVoided
	}

	if rec.DebitAccountID == uuid.Nil {
		rec.DebitAccountID = pending.DebitAccountID
	}
	if rec.CreditAccountID == uuid.Nil {
		rec.CreditAccountID = pending.CreditAccountID
	}
	if rec.Amount == 0 {
		rec.Amount = pending.Amount
	}
	if rec.Ledger == 0 {
		rec.Ledger = pending.Ledger
	}
	if rec.Code == 0 {
		rec.Code = pending.Code
	}
	if rec.DebitAccountID != pending.DebitAccountID ||
		rec.CreditAccountID != pending.CreditAccountID ||
		rec.Amount != pending.Amount {
		return rec, ResultPendingTransferMismatch
	}
	return rec, ResultOK
}

func overflows(total, amount int64) bool {
	return amount > math.MaxInt64-total
}

// checkOverflow rejects rec when it would carry the pending plus posted
// totals of either leg past int64. Post and void only move amounts already
// reserved in the pending totals.
func checkOverflow(debit, credit *AccountRecord, rec TransferRecord) ResultCode {
	if rec.Flags.Has(FlagPostPending) || rec.Flags.Has(FlagVoidPending) {
		return ResultOK
	}
	if overflows(debit.DebitsPending+debit.DebitsPosted, rec.Amount) {
		return ResultOverflowsDebits
	}
	if overflows(credit.CreditsPending+credit.CreditsPosted, rec.Amount) {
		return ResultOverflowsCredits
	}
	return ResultOK
}

// applyBalances moves the running totals of both legs for an accepted record.
func applyBalances(debit, credit *AccountRecord, rec TransferRecord) {
	amount := rec.Amount
	switch {
	case rec.Flags.Has(FlagPending):
		debit.DebitsPending += amount
		credit.CreditsPending += amount
	case rec.Flags.Has(FlagPostPending):
		debit.DebitsPending -= amount
		credit.CreditsPending -= amount
		debit.DebitsPosted += amount
		credit.CreditsPosted += amount
	case rec.Flags.Has(FlagVoidPending):
		debit.DebitsPending -= amount
		credit.CreditsPending -= amount
	default:
		debit.DebitsPosted += amount
		credit.CreditsPosted += amount
	}
}
