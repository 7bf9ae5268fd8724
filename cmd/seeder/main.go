package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/paycore/internal/config"
	"github.com/punchamoorthee/paycore/internal/core"
	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/logging"
	"github.com/punchamoorthee/paycore/internal/money"
	"github.com/punchamoorthee/paycore/internal/store"
)

const batchSize = 1000

var (
	totalAccounts  int
	initialBalance string
	workers        int
	owner          string
)

func init() {
	flag.IntVar(&totalAccounts, "accounts", 1000, "Number of accounts to seed")
	flag.StringVar(&initialBalance, "balance", "100.00", "Opening balance per account")
	flag.IntVar(&workers, "workers", 16, "Concurrent deposit workers")
	flag.StringVar(&owner, "owner", "seeder", "Owner reference stored on seeded accounts")
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	opening, err := money.Parse(initialBalance)
	if err != nil {
		logger.Fatal("invalid opening balance", zap.Error(err))
	}

	ctx := context.Background()
	ledgerStore, err := store.Open(ctx, cfg.Backend, cfg.DBSource)
	if err != nil {
		logger.Fatal("unable to open ledger store", zap.Error(err))
	}
	defer ledgerStore.Close()

	paymentCore := core.New(ledgerStore, core.Config{
		SystemAccountID: cfg.SystemAccountID,
		Ledger:          cfg.LedgerID,
		AccountCode:     cfg.AccountCode,
	}, logger)
	if err := paymentCore.InitializeSystemAccount(ctx); err != nil {
		logger.Fatal("initialize system account failed", zap.Error(err))
	}

	logger.Info("--- Seeding Ledger ---")

	if n := clampAccounts(totalAccounts); n != totalAccounts {
		logger.Warn("account count capped to the query limit", zap.Int("requested", totalAccounts), zap.Int("accounts", n))
		totalAccounts = n
	}

	seeded, err := seededAccounts(ctx, paymentCore, totalAccounts)
	if err != nil {
		logger.Fatal("list accounts failed", zap.Error(err))
	}
	if seeded >= totalAccounts {
		logger.Info("ledger already seeded, skipping", zap.Int("accounts", seeded))
		return
	}

	start := time.Now()
	var accounts []*domain.Account
	for remaining := totalAccounts; remaining > 0; remaining -= batchSize {
		n := min(remaining, batchSize)
		batch, err := paymentCore.CreateAccounts(ctx, owner, n)
		if err != nil {
			logger.Fatal("bulk account creation failed", zap.Error(err))
		}
		accounts = append(accounts, batch...)
	}
	logger.Info("accounts created", zap.Int("count", len(accounts)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, a := range accounts {
		g.Go(func() error {
			dep, err := paymentCore.Deposit(gctx, a.ID, opening)
			if err != nil {
				return err
			}
			_, err = paymentCore.ConfirmTransaction(gctx, dep.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal("opening deposits failed", zap.Error(err))
	}

	logger.Info("successfully seeded accounts",
		zap.Int("accounts", len(accounts)),
		zap.String("opening_balance", money.Format(opening)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// clampAccounts keeps n within what a single account listing can observe,
// leaving room for the system account.
func clampAccounts(n int) int {
	return min(n, store.MaxQueryLimit-1)
}

// seededAccounts counts customer accounts already in the ledger, up to want.
func seededAccounts(ctx context.Context, c *core.Core, want int) (int, error) {
	existing, err := c.ListAccounts(ctx, want+1)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range existing {
		if a.ID != c.SystemAccountID() {
			n++
		}
	}
	return n, nil
}
