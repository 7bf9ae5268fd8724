package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/store"
)

// GetTransaction returns nil, nil when no transfer has the id.
func (c *Core) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	rec, err := c.store.LookupTransfer(ctx, id)
	if err != nil {
		return nil, c.unavailable("lookup_transfer", err)
	}
	if rec == nil {
		return nil, nil
	}

	var resolution *store.TransferRecord
	if rec.Flags.Has(store.FlagPending) {
		found, err := c.store.QueryAccountTransfers(ctx, rec.CreditAccountID,
			store.TransferFilter{Credits: true, PendingID: rec.ID}, 1)
		if err != nil {
			return nil, c.unavailable("query_transfers", err)
		}
		if len(found) > 0 {
			resolution = &found[0]
		}
	}
	return toTransfer(*rec, resolution), nil
}

func (c *Core) GetTransactionOrFail(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := c.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransferNotFound
	}
	return t, nil
}

// GetAccountTransactions lists the most recent transfers on either leg of
// accountID, newest first.
func (c *Core) GetAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transfer, error) {
	if _, err := c.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	recs, err := c.store.QueryAccountTransfers(ctx, accountID, store.TransferFilter{}, TransactionHistoryLimit)
	if err != nil {
		return nil, c.unavailable("query_transfers", err)
	}

	// A resolution is always newer than its pending transfer and touches the
	// same account, so it precedes it in this window.
	resolutions := make(map[uuid.UUID]*store.TransferRecord)
	for i := range recs {
		if recs[i].PendingID != uuid.Nil {
			resolutions[recs[i].PendingID] = &recs[i]
		}
	}

	out := make([]*domain.Transfer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toTransfer(rec, resolutions[rec.ID]))
	}
	return out, nil
}
