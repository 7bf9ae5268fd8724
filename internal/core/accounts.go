package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/store"
)

func (c *Core) newAccountRecord(id uuid.UUID, ownerRef string) store.AccountRecord {
	return store.AccountRecord{
		ID:       id,
		UserData: ownerRef,
		Ledger:   c.cfg.Ledger,
		Code:     c.cfg.AccountCode,
	}
}

// CreateAccount opens a zero-balance account for ownerRef. A rejected write
// is reported as ErrStoreWrite and never retried under a new id.
func (c *Core) CreateAccount(ctx context.Context, ownerRef string) (*domain.Account, error) {
	rec := c.newAccountRecord(uuid.New(), ownerRef)

	results, err := c.store.CreateAccounts(ctx, []store.AccountRecord{rec})
	if err != nil {
		return nil, c.unavailable("create_account", err)
	}
	if len(results) > 0 {
		c.logger.Warn("ledger store rejected account",
			zap.Stringer("account_id", rec.ID),
			zap.Stringer("result", results[0].Code),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreWrite, results[0].Code)
	}

	return c.GetAccount(ctx, rec.ID)
}

// CreateAccounts opens n accounts for ownerRef in a single store call.
func (c *Core) CreateAccounts(ctx context.Context, ownerRef string, n int) ([]*domain.Account, error) {
	if n <= 0 {
		return []*domain.Account{}, nil
	}

	recs := make([]store.AccountRecord, n)
	for i := range recs {
		recs[i] = c.newAccountRecord(uuid.New(), ownerRef)
	}

	results, err := c.store.CreateAccounts(ctx, recs)
	if err != nil {
		return nil, c.unavailable("create_accounts", err)
	}
	if len(results) > 0 {
		batchErr := &domain.BatchError{}
		for _, r := range results {
			batchErr.Failures = append(batchErr.Failures, domain.BatchFailure{Index: r.Index, Reason: r.Code.String()})
		}
		c.logger.Warn("ledger store rejected account batch", zap.Int("size", n), zap.Error(batchErr))
		return nil, batchErr
	}

	out := make([]*domain.Account, n)
	for i, rec := range recs {
		out[i] = toAccount(rec)
	}
	return out, nil
}

func (c *Core) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	rec, err := c.store.LookupAccount(ctx, id)
	if err != nil {
		return nil, c.unavailable("lookup_account", err)
	}
	if rec == nil {
		return nil, domain.ErrAccountNotFound
	}
	return toAccount(*rec), nil
}

func (c *Core) GetMasterAccount(ctx context.Context) (*domain.Account, error) {
	return c.GetAccount(ctx, c.cfg.SystemAccountID)
}

// ListAccounts returns up to limit accounts in creation order.
func (c *Core) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > store.MaxQueryLimit {
		limit = store.MaxQueryLimit
	}

	recs, err := c.store.QueryAccounts(ctx, store.AccountFilter{}, limit)
	if err != nil {
		return nil, c.unavailable("query_accounts", err)
	}
	out := make([]*domain.Account, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAccount(rec))
	}
	return out, nil
}

// InitializeSystemAccount creates the system account unless it already
// exists. Safe to call from several instances at once.
func (c *Core) InitializeSystemAccount(ctx context.Context) error {
	existing, err := c.store.LookupAccount(ctx, c.cfg.SystemAccountID)
	if err != nil {
		return c.unavailable("lookup_account", err)
	}
	if existing != nil {
		return nil
	}

	results, err := c.store.CreateAccounts(ctx, []store.AccountRecord{c.newAccountRecord(c.cfg.SystemAccountID, "")})
	if err != nil {
		return c.unavailable("create_account", err)
	}
	for _, r := range results {
		if r.Code == store.ResultExists {
			continue
		}
		c.logger.Error("initialize system account failed", zap.Stringer("result", r.Code))
		return fmt.Errorf("%w: %s", domain.ErrStoreWrite, r.Code)
	}

	c.logger.Info("system account ready", zap.Stringer("account_id", c.cfg.SystemAccountID))
	return nil
}
