// Package core implements the payment core: account lifecycle, the two-phase
// transfer state machine and the queries over the ledger store.
//
// Amounts are int64 minor units throughout; conversion from decimal happens
// in the service layer. The core keeps no mutable state of its own, so a
// single Core may be shared by any number of goroutines.
package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/store"
)

const (
	// DefaultListLimit applies when a list call passes no limit.
	DefaultListLimit = 100
	// TransactionHistoryLimit bounds GetAccountTransactions.
	TransactionHistoryLimit = 100
)

// DefaultSystemAccountID is the reserved id of the system account (999).
var DefaultSystemAccountID = uuid.MustParse("00000000-0000-0000-0000-0000000003e7")

type Config struct {
	SystemAccountID uuid.UUID
	Ledger          uint32
	AccountCode     uint16
}

type Core struct {
	store  store.LedgerStore
	cfg    Config
	logger *zap.Logger
}

func New(s store.LedgerStore, cfg Config, logger *zap.Logger) *Core {
	if cfg.SystemAccountID == uuid.Nil {
		cfg.SystemAccountID = DefaultSystemAccountID
	}
	if cfg.Ledger == 0 {
		cfg.Ledger = 1
	}
	if cfg.AccountCode == 0 {
		cfg.AccountCode = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{store: s, cfg: cfg, logger: logger}
}

// SystemAccountID returns the counterparty of deposits and withdrawals.
func (c *Core) SystemAccountID() uuid.UUID {
	return c.cfg.SystemAccountID
}

// Ping checks that the ledger store answers.
func (c *Core) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return c.unavailable("ping", err)
	}
	return nil
}

func (c *Core) unavailable(op string, err error) error {
	c.logger.Error("ledger store unavailable", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// createTransfer writes one transfer record and translates a rejection into
// the matching domain error.
func (c *Core) createTransfer(ctx context.Context, op string, rec store.TransferRecord) error {
	results, err := c.store.CreateTransfers(ctx, []store.TransferRecord{rec})
	if err != nil {
		return c.unavailable(op, err)
	}
	if len(results) == 0 {
		return nil
	}

	res := results[0]
	c.logger.Warn("ledger store rejected transfer",
		zap.String("operation", op),
		zap.Stringer("transfer_id", rec.ID),
		zap.Int("index", res.Index),
		zap.Stringer("result", res.Code),
	)

	switch res.Code {
	case store.ResultPendingTransferAlreadyPosted,
		store.ResultPendingTransferAlreadyVoided,
		store.ResultPendingTransferNotPending:
		return domain.ErrAlreadySettled
	case store.ResultPendingTransferNotFound:
		return domain.ErrTransferNotFound
	case store.ResultDebitAccountNotFound, store.ResultCreditAccountNotFound:
		return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, res.Code)
	case store.ResultOverflowsDebits, store.ResultOverflowsCredits:
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, res.Code)
	default:
		return fmt.Errorf("%w: %s", domain.ErrStoreWrite, res.Code)
	}
}
