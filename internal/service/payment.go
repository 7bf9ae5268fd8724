// Package service is the facade the transport layer talks to. It accepts
// decimal amounts and identifiers, converts them for the payment core and
// records an outcome metric for every operation.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/core"
	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/money"
)

// MaxBulkAccounts caps a single bulk account creation.
const MaxBulkAccounts = 10000

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Payment operations by outcome",
	},
	[]string{"operation", "outcome"},
)

type PaymentService struct {
	core   *core.Core
	logger *zap.Logger
}

func NewPaymentService(c *core.Core, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{core: c, logger: logger}
}

// SystemAccountID returns the counterparty of deposits and withdrawals.
func (s *PaymentService) SystemAccountID() uuid.UUID {
	return s.core.SystemAccountID()
}

func (s *PaymentService) Ping(ctx context.Context) error {
	return s.core.Ping(ctx)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsBusiness(err):
		return "rejected"
	case domain.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}

func (s *PaymentService) observe(op string, err error) {
	operationsTotal.WithLabelValues(op, outcome(err)).Inc()
	if err != nil && !domain.IsNotFound(err) && !domain.IsBusiness(err) {
		s.logger.Error("payment operation failed", zap.String("operation", op), zap.Error(err))
	}
}

// toMinor converts a caller amount, rejecting anything that does not round
// to a positive number of minor units.
func toMinor(amount decimal.Decimal) (int64, error) {
	minor, err := money.ToMinorUnits(amount)
	if err != nil {
		if errors.Is(err, money.ErrOutOfRange) {
			return 0, fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
		}
		return 0, err
	}
	if minor <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return minor, nil
}

func (s *PaymentService) CreateAccount(ctx context.Context, userID string) (*domain.Account, error) {
	a, err := s.core.CreateAccount(ctx, userID)
	s.observe("create_account", err)
	return a, err
}

// CreateAccounts opens count accounts for userID; count must be 1..MaxBulkAccounts.
func (s *PaymentService) CreateAccounts(ctx context.Context, userID string, count int) ([]*domain.Account, error) {
	if count < 1 || count > MaxBulkAccounts {
		s.observe("create_accounts", domain.ErrInvalidCount)
		return nil, domain.ErrInvalidCount
	}
	accounts, err := s.core.CreateAccounts(ctx, userID, count)
	s.observe("create_accounts", err)
	return accounts, err
}

func (s *PaymentService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.core.GetAccount(ctx, id)
	s.observe("get_account", err)
	return a, err
}

func (s *PaymentService) GetMasterAccount(ctx context.Context) (*domain.Account, error) {
	a, err := s.core.GetMasterAccount(ctx)
	s.observe("get_master_account", err)
	return a, err
}

func (s *PaymentService) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	accounts, err := s.core.ListAccounts(ctx, limit)
	s.observe("list_accounts", err)
	return accounts, err
}

func (s *PaymentService) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Transfer, error) {
	minor, err := toMinor(amount)
	if err != nil {
		s.observe("deposit", err)
		return nil, err
	}
	t, err := s.core.Deposit(ctx, accountID, minor)
	s.observe("deposit", err)
	return t, err
}

func (s *PaymentService) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Transfer, error) {
	minor, err := toMinor(amount)
	if err != nil {
		s.observe("withdraw", err)
		return nil, err
	}
	t, err := s.core.Withdraw(ctx, accountID, minor)
	s.observe("withdraw", err)
	return t, err
}

func (s *PaymentService) ConfirmTransaction(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.core.ConfirmTransaction(ctx, id)
	s.observe("confirm", err)
	return a, err
}

func (s *PaymentService) AvoidTransaction(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.core.AvoidTransaction(ctx, id)
	s.observe("void", err)
	return a, err
}

func (s *PaymentService) Refund(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.core.Refund(ctx, id)
	s.observe("refund", err)
	return a, err
}

// GetTransaction fails with ErrTransferNotFound when the id is unknown.
func (s *PaymentService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := s.core.GetTransactionOrFail(ctx, id)
	s.observe("get_transaction", err)
	return t, err
}

func (s *PaymentService) GetAccountTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transfer, error) {
	transfers, err := s.core.GetAccountTransactions(ctx, accountID)
	s.observe("get_account_transactions", err)
	return transfers, err
}
