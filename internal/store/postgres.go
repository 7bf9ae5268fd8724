package store

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	pendingIDConstraint = "transfers_pending_id_key"
)

const accountColumns = `id, user_data, ledger, code, flags,
	debits_pending, debits_posted, credits_pending, credits_posted, created_at`

const transferColumns = `id, debit_account_id, credit_account_id, amount,
	pending_id, related_id, ledger, code, flags, created_at`

// PostgresStore keeps the ledger in PostgreSQL. Every create call runs in a
// single transaction so a batch commits or rolls back as a whole.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

// Migrate creates the ledger tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) CreateAccounts(ctx context.Context, accounts []AccountRecord) ([]CreateResult, error) {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, a := range accounts {
		if a.ID == uuid.Nil {
			return []CreateResult{{Index: i, Code: ResultIDMustNotBeZero}}, nil
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO accounts (id, user_data, ledger, code, flags) VALUES ($1, $2, $3, $4, $5)",
			a.ID, a.UserData, int64(a.Ledger), int32(a.Code), int32(a.Flags),
		)
		if err != nil {
			if code, ok := resultFromPgError(err); ok {
				return []CreateResult{{Index: i, Code: code}}, nil
			}
			return nil, fmt.Errorf("account insert failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return nil, nil
}

func (s *PostgresStore) LookupAccount(ctx context.Context, id uuid.UUID) (*AccountRecord, error) {
	row := s.Db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) QueryAccounts(ctx context.Context, filter AccountFilter, limit int) ([]AccountRecord, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+accountColumns+` FROM accounts
		WHERE ($1::bigint = 0 OR ledger = $1) AND ($2::integer = 0 OR code = $2)
		ORDER BY seq LIMIT $3`,
		int64(filter.Ledger), int32(filter.Code), clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	defer rows.Close()

	out := make([]AccountRecord, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("account scan failed: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTransfers(ctx context.Context, transfers []TransferRecord) ([]CreateResult, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, rec := range transfers {
		code, err := createTransfer(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		if code != ResultOK {
			return []CreateResult{{Index: i, Code: code}}, nil
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return nil, nil
}

func createTransfer(ctx context.Context, tx pgx.Tx, rec TransferRecord) (ResultCode, error) {
	if rec.ID != uuid.Nil {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM transfers WHERE id = $1)", rec.ID).Scan(&exists)
		if err != nil {
			return ResultOK, fmt.Errorf("transfer lookup failed: %w", err)
		}
		if exists {
			return ResultExists, nil
		}
	}

	var pending, resolution *TransferRecord
	if rec.PendingID != uuid.Nil {
		// The row lock serialises concurrent post/void of one pending transfer.
		p, err := scanTransfer(tx.QueryRow(ctx,
			"SELECT "+transferColumns+" FROM transfers WHERE id = $1 FOR UPDATE", rec.PendingID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return ResultOK, fmt.Errorf("pending transfer lookup failed: %w", err)
		}
		pending = p
		if pending != nil {
			r, err := scanTransfer(tx.QueryRow(ctx,
				"SELECT "+transferColumns+" FROM transfers WHERE pending_id = $1", rec.PendingID))
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return ResultOK, fmt.Errorf("resolution lookup failed: %w", err)
			}
			resolution = r
		}
	}

	rec, code := checkTransfer(rec, pending, resolution)
	if code != ResultOK {
		return code, nil
	}

	debit, credit, code, err := lockAccounts(ctx, tx, rec.DebitAccountID, rec.CreditAccountID)
	if err != nil || code != ResultOK {
		return code, err
	}
	if code := checkOverflow(debit, credit, rec); code != ResultOK {
		return code, nil
	}
	applyBalances(debit, credit, rec)

	_, err = tx.Exec(ctx,
		`INSERT INTO transfers (id, debit_account_id, credit_account_id, amount, pending_id, related_id, ledger, code, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.DebitAccountID, rec.CreditAccountID, rec.Amount,
		nullableID(rec.PendingID), nullableID(rec.RelatedID),
		int64(rec.Ledger), int32(rec.Code), int32(rec.Flags),
	)
	if err != nil {
		if code, ok := resultFromPgError(err); ok {
			return code, nil
		}
		return ResultOK, fmt.Errorf("transfer insert failed: %w", err)
	}

	for _, a := range []*AccountRecord{debit, credit} {
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET debits_pending = $1, debits_posted = $2, credits_pending = $3, credits_posted = $4
			WHERE id = $5`,
			a.DebitsPending, a.DebitsPosted, a.CreditsPending, a.CreditsPosted, a.ID,
		)
		if err != nil {
			if code, ok := resultFromPgError(err); ok {
				return code, nil
			}
			return ResultOK, fmt.Errorf("balance update failed: %w", err)
		}
	}
	return ResultOK, nil
}

// lockAccounts takes row locks on both legs in id order so concurrent
// transfers between the same pair cannot deadlock.
func lockAccounts(ctx context.Context, tx pgx.Tx, debitID, creditID uuid.UUID) (*AccountRecord, *AccountRecord, ResultCode, error) {
	first, second := debitID, creditID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*AccountRecord, 2)
	for _, id := range []uuid.UUID{first, second} {
		a, err := scanAccount(tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1 FOR UPDATE", id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, ResultOK, fmt.Errorf("lock acquisition failed: %w", err)
		}
		locked[id] = a
	}

	debit, ok := locked[debitID]
	if !ok {
		return nil, nil, ResultDebitAccountNotFound, nil
	}
	credit, ok := locked[creditID]
	if !ok {
		return nil, nil, ResultCreditAccountNotFound, nil
	}
	return debit, credit, ResultOK, nil
}

func (s *PostgresStore) LookupTransfer(ctx context.Context, id uuid.UUID) (*TransferRecord, error) {
	t, err := scanTransfer(s.Db.QueryRow(ctx, "SELECT "+transferColumns+" FROM transfers WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transfer lookup failed: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) QueryAccountTransfers(ctx context.Context, accountID uuid.UUID, filter TransferFilter, limit int) ([]TransferRecord, error) {
	debits, credits := filter.Debits, filter.Credits
	if !debits && !credits {
		debits, credits = true, true
	}

	rows, err := s.Db.Query(ctx,
		"SELECT "+transferColumns+` FROM transfers
		WHERE (($2::boolean AND debit_account_id = $1) OR ($3::boolean AND credit_account_id = $1))
		  AND ($4::uuid IS NULL OR pending_id = $4)
		  AND ($5::integer = 0 OR code = $5)
		ORDER BY seq DESC LIMIT $6`,
		accountID, debits, credits, nullableID(filter.PendingID), int32(filter.Code), clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("transfer query failed: %w", err)
	}
	defer rows.Close()

	out := make([]TransferRecord, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("transfer scan failed: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*AccountRecord, error) {
	var (
		a           AccountRecord
		ledger      int64
		code, flags int32
	)
	err := row.Scan(&a.ID, &a.UserData, &ledger, &code, &flags,
		&a.DebitsPending, &a.DebitsPosted, &a.CreditsPending, &a.CreditsPosted, &a.Timestamp)
	if err != nil {
		return nil, err
	}
	a.Ledger, a.Code, a.Flags = uint32(ledger), uint16(code), uint16(flags)
	return &a, nil
}

func scanTransfer(row pgx.Row) (*TransferRecord, error) {
	var (
		t                  TransferRecord
		pendingID, related uuid.NullUUID
		ledger             int64
		code, flags        int32
	)
	err := row.Scan(&t.ID, &t.DebitAccountID, &t.CreditAccountID, &t.Amount,
		&pendingID, &related, &ledger, &code, &flags, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	if pendingID.Valid {
		t.PendingID = pendingID.UUID
	}
	if related.Valid {
		t.RelatedID = related.UUID
	}
	t.Ledger, t.Code, t.Flags = uint32(ledger), uint16(code), TransferFlags(flags)
	return &t, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// resultFromPgError maps constraint violations to ledger result codes.
func resultFromPgError(err error) (ResultCode, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ResultOK, false
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == pendingIDConstraint {
			return ResultPendingTransferAlreadyPosted, true
		}
		return ResultExists, true
	case pgForeignKeyViolation:
		return ResultRejected, true
	case pgCheckViolation:
		return ResultRejected, true
	}
	return ResultOK, false
}
