package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/money"
)

// Account is the wire form of a ledger account. Balance is the settled balance
// in major units.
type Account struct {
	ID      string             `json:"id"`
	UserID  string             `json:"userId,omitempty"`
	Balance json.Number        `json:"balance"`
	Meta    domain.AccountMeta `json:"meta"`
}

// Transaction is the wire form of a transfer. AccountID is the customer side
// of the transfer; Status uses the external names PENDING/COMPLETED/FAILED.
type Transaction struct {
	ID                   string      `json:"id"`
	AccountID            string      `json:"accountId"`
	Amount               json.Number `json:"amount"`
	Type                 string      `json:"type"`
	Status               string      `json:"status"`
	CreatedAt            time.Time   `json:"createdAt"`
	RelatedTransactionID string      `json:"relatedTransactionId,omitempty"`
}

// CreateAccountRequest is the payload of POST /accounts.
type CreateAccountRequest struct {
	UserID string `json:"userId"`
}

// BulkCreateAccountsRequest is the payload of POST /accounts/bulk.
type BulkCreateAccountsRequest struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// AmountRequest is the payload of deposits and withdrawals.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// IdempotencyRecord holds the state of a request key.
type IdempotencyRecord struct {
	Status         string          `json:"status"`
	RequestHash    string          `json:"request_hash"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
}

func NewAccount(a *domain.Account) Account {
	return Account{
		ID:      a.ID.String(),
		UserID:  a.OwnerRef,
		Balance: json.Number(money.Format(a.Balance())),
		Meta:    a.Meta,
	}
}

func NewAccounts(accounts []*domain.Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, NewAccount(a))
	}
	return out
}

// NewTransaction renders t. The customer side is whichever leg is not the
// system account; a transfer between two customer accounts reports its credit side.
func NewTransaction(t *domain.Transfer, systemAccountID uuid.UUID) Transaction {
	accountID := t.CreditAccountID
	if accountID == systemAccountID {
		accountID = t.DebitAccountID
	}

	tx := Transaction{
		ID:        t.ID.String(),
		AccountID: accountID.String(),
		Amount:    json.Number(money.Format(t.Amount)),
		Type:      string(t.Type),
		Status:    t.Status.External(),
		CreatedAt: t.CreatedAt,
	}
	if t.RelatedTransferID != nil {
		tx.RelatedTransactionID = t.RelatedTransferID.String()
	}
	return tx
}

func NewTransactions(transfers []*domain.Transfer, systemAccountID uuid.UUID) []Transaction {
	out := make([]Transaction, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, NewTransaction(t, systemAccountID))
	}
	return out
}
