package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ledger_store_breaker_state",
		Help: "Ledger store circuit breaker state (0 closed, 1 half-open, 2 open)",
	},
	[]string{"breaker"},
)

type ResilienceConfig struct {
	// Timeout bounds every store call.
	Timeout time.Duration
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Resilient wraps a LedgerStore with a per-call deadline and a circuit
// breaker. Only returned errors count as failures; rejected entries are
// ordinary answers.
type Resilient struct {
	next    LedgerStore
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewResilient(next LedgerStore, cfg ResilienceConfig, logger *zap.Logger) *Resilient {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	r := &Resilient{next: next, timeout: cfg.Timeout, logger: logger}

	settings := gobreaker.Settings{
		Name:        "ledger-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	r.breaker = gobreaker.NewCircuitBreaker(settings)
	breakerState.WithLabelValues(settings.Name).Set(float64(gobreaker.StateClosed))
	return r
}

// State reports the breaker state for health checks.
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

func call[T any](ctx context.Context, r *Resilient, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Warn("ledger store call rejected", zap.Error(err))
		}
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.(T), nil
}

func (r *Resilient) CreateAccounts(ctx context.Context, accounts []AccountRecord) ([]CreateResult, error) {
	return call(ctx, r, func(ctx context.Context) ([]CreateResult, error) {
		return r.next.CreateAccounts(ctx, accounts)
	})
}

func (r *Resilient) LookupAccount(ctx context.Context, id uuid.UUID) (*AccountRecord, error) {
	return call(ctx, r, func(ctx context.Context) (*AccountRecord, error) {
		return r.next.LookupAccount(ctx, id)
	})
}

func (r *Resilient) QueryAccounts(ctx context.Context, filter AccountFilter, limit int) ([]AccountRecord, error) {
	return call(ctx, r, func(ctx context.Context) ([]AccountRecord, error) {
		return r.next.QueryAccounts(ctx, filter, limit)
	})
}

func (r *Resilient) CreateTransfers(ctx context.Context, transfers []TransferRecord) ([]CreateResult, error) {
	return call(ctx, r, func(ctx context.Context) ([]CreateResult, error) {
		return r.next.CreateTransfers(ctx, transfers)
	})
}

func (r *Resilient) LookupTransfer(ctx context.Context, id uuid.UUID) (*TransferRecord, error) {
	return call(ctx, r, func(ctx context.Context) (*TransferRecord, error) {
		return r.next.LookupTransfer(ctx, id)
	})
}

func (r *Resilient) QueryAccountTransfers(ctx context.Context, accountID uuid.UUID, filter TransferFilter, limit int) ([]TransferRecord, error) {
	return call(ctx, r, func(ctx context.Context) ([]TransferRecord, error) {
		return r.next.QueryAccountTransfers(ctx, accountID, filter, limit)
	})
}

func (r *Resilient) Ping(ctx context.Context) error {
	_, err := call(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Ping(ctx)
	})
	return err
}

func (r *Resilient) Close() {
	r.next.Close()
}
