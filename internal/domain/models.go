package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferType is the kind of value movement a transfer represents.
type TransferType string

const (
	TransferTypeDeposit    TransferType = "DEPOSIT"
	TransferTypeWithdrawal TransferType = "WITHDRAWAL"
	TransferTypeRefund     TransferType = "REFUND"
	TransferTypeUnknown    TransferType = "UNKNOWN"
)

// TransferStatus is the settlement state of a transfer.
// PENDING moves to POSTED or VOIDED; both are terminal.
type TransferStatus string

const (
	StatusPending TransferStatus = "PENDING"
	StatusPosted  TransferStatus = "POSTED"
	StatusVoided  TransferStatus = "VOIDED"
)

// External returns the status name reported to API callers.
func (s TransferStatus) External() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusPosted:
		return "COMPLETED"
	case StatusVoided:
		return "FAILED"
	default:
		return string(s)
	}
}

// Terminal reports whether no further transition can leave s.
func (s TransferStatus) Terminal() bool {
	return s == StatusPosted || s == StatusVoided
}

// AccountMeta carries classification attributes. It plays no part in balance math.
type AccountMeta struct {
	Ledger uint32 `json:"ledger"`
	Code   uint16 `json:"code"`
	Flags  uint16 `json:"flags"`
}

// Account is a ledger account as seen by the payment core. The running totals
// are maintained by the ledger store; the balance is always derived from them.
type Account struct {
	ID             uuid.UUID
	OwnerRef       string
	DebitsPending  int64
	DebitsPosted   int64
	CreditsPending int64
	CreditsPosted  int64
	Meta           AccountMeta
	CreatedAt      time.Time
}

// Balance is the settled balance in minor units: posted credits minus posted debits.
func (a Account) Balance() int64 {
	return a.CreditsPosted - a.DebitsPosted
}

// Transfer is an immutable record of value moving from the debit account to
// the credit account. A change of state is a new Transfer that references its
// predecessor through RelatedTransferID.
type Transfer struct {
	ID                uuid.UUID
	DebitAccountID    uuid.UUID
	CreditAccountID   uuid.UUID
	Amount            int64
	Type              TransferType
	Status            TransferStatus
	RelatedTransferID *uuid.UUID
	CreatedAt         time.Time
}

// Settleable reports whether t may be confirmed or voided.
func (t Transfer) Settleable() error {
	if t.Status == StatusPending {
		return nil
	}
	return ErrAlreadySettled
}

// Refundable reports whether t may be reversed by a refund.
func (t Transfer) Refundable() error {
	switch {
	case t.Status == StatusPosted && t.Type == TransferTypeDeposit:
		return nil
	case t.Status != StatusPosted:
		return ErrNotCompleted
	default:
		return ErrNotADeposit
	}
}
