package core

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/store"
)

// Deposit places a pending credit of amount on accountID, funded by the
// system account. The balance moves once the deposit is confirmed.
func (c *Core) Deposit(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Transfer, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if accountID == c.cfg.SystemAccountID {
		return nil, domain.ErrSystemAccount
	}
	if _, err := c.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rec := store.TransferRecord{
		ID:              uuid.New(),
		DebitAccountID:  c.cfg.SystemAccountID,
		CreditAccountID: accountID,
		Amount:          amount,
		Ledger:          c.cfg.Ledger,
		Code:            domain.CodeFor(domain.TransferTypeDeposit),
		Flags:           store.FlagPending,
	}
	if err := c.createTransfer(ctx, "deposit", rec); err != nil {
		return nil, err
	}

	c.logger.Info("deposit pending",
		zap.Stringer("transfer_id", rec.ID),
		zap.Stringer("account_id", accountID),
		zap.Int64("amount", amount),
	)
	return c.GetTransactionOrFail(ctx, rec.ID)
}

// Withdraw moves amount from accountID to the system account immediately.
// Only the settled balance counts towards available funds.
func (c *Core) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Transfer, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if accountID == c.cfg.SystemAccountID {
		return nil, domain.ErrSystemAccount
	}
	acct, err := c.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Balance() < amount {
		return nil, domain.ErrInsufficientFunds
	}

	rec := store.TransferRecord{
		ID:              uuid.New(),
		DebitAccountID:  accountID,
		CreditAccountID: c.cfg.SystemAccountID,
		Amount:          amount,
		Ledger:          c.cfg.Ledger,
		Code:            domain.CodeFor(domain.TransferTypeWithdrawal),
	}
	if err := c.createTransfer(ctx, "withdraw", rec); err != nil {
		return nil, err
	}

	c.logger.Info("withdrawal posted",
		zap.Stringer("transfer_id", rec.ID),
		zap.Stringer("account_id", accountID),
		zap.Int64("amount", amount),
	)
	return c.GetTransactionOrFail(ctx, rec.ID)
}

// ConfirmTransaction posts a pending transfer and returns its credit account.
func (c *Core) ConfirmTransaction(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return c.settle(ctx, "confirm", id, store.FlagPostPending)
}

// AvoidTransaction voids a pending transfer and returns its credit account.
func (c *Core) AvoidTransaction(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return c.settle(ctx, "void", id, store.FlagVoidPending)
}

func (c *Core) settle(ctx context.Context, op string, id uuid.UUID, flag store.TransferFlags) (*domain.Account, error) {
	pending, err := c.GetTransactionOrFail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := pending.Settleable(); err != nil {
		return nil, err
	}

	rec := store.TransferRecord{
		ID:              uuid.New(),
		DebitAccountID:  pending.DebitAccountID,
		CreditAccountID: pending.CreditAccountID,
		Amount:          pending.Amount,
		PendingID:       pending.ID,
		Ledger:          c.cfg.Ledger,
		Code:            domain.CodeFor(pending.Type),
		Flags:           flag,
	}
	if err := c.createTransfer(ctx, op, rec); err != nil {
		return nil, err
	}

	c.logger.Info("transfer settled",
		zap.String("operation", op),
		zap.Stringer("transfer_id", rec.ID),
		zap.Stringer("pending_id", pending.ID),
	)
	return c.GetAccount(ctx, pending.CreditAccountID)
}

// Refund reverses a posted deposit with a new transfer in the opposite
// direction and returns the depositor's account. Funds are not re-checked.
// TODO: reject a second refund of the same deposit once refunds are indexed by RelatedID.
func (c *Core) Refund(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	original, err := c.GetTransactionOrFail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := original.Refundable(); err != nil {
		return nil, err
	}

	rec := store.TransferRecord{
		ID:              uuid.New(),
		DebitAccountID:  original.CreditAccountID,
		CreditAccountID: original.DebitAccountID,
		Amount:          original.Amount,
		RelatedID:       original.ID,
		Ledger:          c.cfg.Ledger,
		Code:            domain.CodeFor(domain.TransferTypeRefund),
	}
	if err := c.createTransfer(ctx, "refund", rec); err != nil {
		return nil, err
	}

	c.logger.Info("deposit refunded",
		zap.Stringer("transfer_id", rec.ID),
		zap.Stringer("refunded_id", original.ID),
	)
	return c.GetAccount(ctx, original.CreditAccountID)
}
