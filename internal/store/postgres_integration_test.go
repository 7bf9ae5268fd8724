//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	// Migrate is safe to re-run.
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestIntegration_Postgres_Lifecycle(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	sys, user := uuid.New(), uuid.New()
	res, err := s.CreateAccounts(ctx, []AccountRecord{
		{ID: sys, Ledger: 1, Code: 1},
		{ID: user, Ledger: 1, Code: 1, UserData: "owner-1"},
	})
	require.NoError(t, err)
	require.Empty(t, res)

	res, err = s.CreateAccounts(ctx, []AccountRecord{{ID: sys, Ledger: 1, Code: 1}})
	require.NoError(t, err)
	assert.Equal(t, []CreateResult{{Index: 0, Code: ResultExists}}, res)

	pendingID := uuid.New()
	res, err = s.CreateTransfers(ctx, []TransferRecord{{
		ID: pendingID, DebitAccountID: sys, CreditAccountID: user, Amount: 1000, Ledger: 1, Code: 1, Flags: FlagPending,
	}})
	require.NoError(t, err)
	require.Empty(t, res)

	postID := uuid.New()
	res, err = s.CreateTransfers(ctx, []TransferRecord{{ID: postID, PendingID: pendingID, Flags: FlagPostPending}})
	require.NoError(t, err)
	require.Empty(t, res)

	acct, err := s.LookupAccount(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, int64(1000), acct.CreditsPosted)
	assert.Equal(t, int64(0), acct.CreditsPending)
	assert.Equal(t, "owner-1", acct.UserData)

	post, err := s.LookupTransfer(ctx, postID)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, pendingID, post.PendingID)
	assert.Equal(t, uint16(1), post.Code)

	found, err := s.QueryAccountTransfers(ctx, user, TransferFilter{Credits: true, PendingID: pendingID}, 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, postID, found[0].ID)

	history, err := s.QueryAccountTransfers(ctx, user, TransferFilter{}, 100)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, postID, history[0].ID)

	res, err = s.CreateTransfers(ctx, []TransferRecord{{ID: uuid.New(), PendingID: pendingID, Flags: FlagVoidPending}})
	require.NoError(t, err)
	assert.Equal(t, ResultPendingTransferAlreadyPosted, res[0].Code)

	missing, err := s.LookupTransfer(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	accounts, err := s.QueryAccounts(ctx, AccountFilter{Ledger: 1}, 10)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, sys, accounts[0].ID)
}

func TestIntegration_Postgres_BatchRollsBack(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	_, err := s.CreateAccounts(ctx, []AccountRecord{{ID: a, Ledger: 1}, {ID: b, Ledger: 1}})
	require.NoError(t, err)

	first := uuid.New()
	res, err := s.CreateTransfers(ctx, []TransferRecord{
		{ID: first, DebitAccountID: a, CreditAccountID: b, Amount: 10, Ledger: 1},
		{ID: uuid.New(), DebitAccountID: a, CreditAccountID: uuid.New(), Amount: 10, Ledger: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []CreateResult{{Index: 1, Code: ResultCreditAccountNotFound}}, res)

	got, err := s.LookupTransfer(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIntegration_Postgres_ConcurrentSettlement(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	_, err := s.CreateAccounts(ctx, []AccountRecord{{ID: a, Ledger: 1}, {ID: b, Ledger: 1}})
	require.NoError(t, err)

	pendingID := uuid.New()
	_, err = s.CreateTransfers(ctx, []TransferRecord{{
		ID: pendingID, DebitAccountID: a, CreditAccountID: b, Amount: 50, Ledger: 1, Flags: FlagPending,
	}})
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			flags := FlagPostPending
			if i%2 == 1 {
				flags = FlagVoidPending
			}
			res, err := s.CreateTransfers(ctx, []TransferRecord{{ID: uuid.New(), PendingID: pendingID, Flags: flags}})
			assert.NoError(t, err)
			if len(res) == 0 {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one settlement wins")

	acct, err := s.LookupAccount(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, acct.CreditsPending)
	assert.Contains(t, []int64{0, 50}, acct.CreditsPosted)
}
