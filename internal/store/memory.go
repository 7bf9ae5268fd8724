package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process LedgerStore. It backs tests and the memory
// ledger backend; state is lost on exit.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[uuid.UUID]*AccountRecord
	accountOrder []uuid.UUID

	transfers map[uuid.UUID]TransferRecord
	// Per-account transfer ids in append order.
	byAccount map[uuid.UUID][]uuid.UUID
	// Pending transfer id to the record that posted or voided it.
	resolutions map[uuid.UUID]uuid.UUID

	clock func() time.Time
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[uuid.UUID]*AccountRecord),
		transfers:   make(map[uuid.UUID]TransferRecord),
		byAccount:   make(map[uuid.UUID][]uuid.UUID),
		resolutions: make(map[uuid.UUID]uuid.UUID),
		clock:       time.Now,
	}
}

// now hands out strictly increasing timestamps so records keep a total order.
func (s *MemoryStore) now() time.Time {
	t := s.clock().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) CreateAccounts(ctx context.Context, accounts []AccountRecord) ([]CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(accounts))
	for i, a := range accounts {
		if a.ID == uuid.Nil {
			return []CreateResult{{Index: i, Code: ResultIDMustNotBeZero}}, nil
		}
		if _, ok := s.accounts[a.ID]; ok {
			return []CreateResult{{Index: i, Code: ResultExists}}, nil
		}
		if _, ok := seen[a.ID]; ok {
			return []CreateResult{{Index: i, Code: ResultExists}}, nil
		}
		seen[a.ID] = struct{}{}
	}

	for _, a := range accounts {
		rec := a
		rec.DebitsPending, rec.DebitsPosted = 0, 0
		rec.CreditsPending, rec.CreditsPosted = 0, 0
		rec.Timestamp = s.now()
		s.accounts[rec.ID] = &rec
		s.accountOrder = append(s.accountOrder, rec.ID)
	}
	return nil, nil
}

func (s *MemoryStore) LookupAccount(ctx context.Context, id uuid.UUID) (*AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) QueryAccounts(ctx context.Context, filter AccountFilter, limit int) ([]AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	out := make([]AccountRecord, 0)
	for _, id := range s.accountOrder {
		a := s.accounts[id]
		if filter.Ledger != 0 && a.Ledger != filter.Ledger {
			continue
		}
		if filter.Code != 0 && a.Code != filter.Code {
			continue
		}
		out = append(out, *a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// undoLog restores a failed batch.
type undoLog struct {
	accounts  map[uuid.UUID]AccountRecord
	transfers []TransferRecord
}

func (u *undoLog) save(a *AccountRecord) {
	if _, ok := u.accounts[a.ID]; !ok {
		u.accounts[a.ID] = *a
	}
}

func (s *MemoryStore) rollback(u *undoLog) {
	for id, a := range u.accounts {
		restored := a
		s.accounts[id] = &restored
	}
	for i := len(u.transfers) - 1; i >= 0; i-- {
		t := u.transfers[i]
		delete(s.transfers, t.ID)
		s.byAccount[t.DebitAccountID] = s.byAccount[t.DebitAccountID][:len(s.byAccount[t.DebitAccountID])-1]
		s.byAccount[t.CreditAccountID] = s.byAccount[t.CreditAccountID][:len(s.byAccount[t.CreditAccountID])-1]
		if t.PendingID != uuid.Nil {
			delete(s.resolutions, t.PendingID)
		}
	}
}

func (s *MemoryStore) CreateTransfers(ctx context.Context, transfers []TransferRecord) ([]CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &undoLog{accounts: make(map[uuid.UUID]AccountRecord)}
	for i, rec := range transfers {
		if code := s.applyTransfer(u, rec); code != ResultOK {
			s.rollback(u)
			return []CreateResult{{Index: i, Code: code}}, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) applyTransfer(u *undoLog, rec TransferRecord) ResultCode {
	if _, ok := s.transfers[rec.ID]; ok && rec.ID != uuid.Nil {
		return ResultExists
	}

	var pending, resolution *TransferRecord
	if rec.PendingID != uuid.Nil {
		if p, ok := s.transfers[rec.PendingID]; ok {
			pending = &p
			if rid, ok := s.resolutions[p.ID]; ok {
				r := s.transfers[rid]
				resolution = &r
			}
		}
	}

	rec, code := checkTransfer(rec, pending, resolution)
	if code != ResultOK {
		return code
	}

	debit, ok := s.accounts[rec.DebitAccountID]
	if !ok {
		return ResultDebitAccountNotFound
	}
	credit, ok := s.accounts[rec.CreditAccountID]
	if !ok {
		return ResultCreditAccountNotFound
	}

	if code := checkOverflow(debit, credit, rec); code != ResultOK {
		return code
	}

	u.save(debit)
	u.save(credit)
	applyBalances(debit, credit, rec)

	rec.Timestamp = s.now()
	s.transfers[rec.ID] = rec
	s.byAccount[rec.DebitAccountID] = append(s.byAccount[rec.DebitAccountID], rec.ID)
	s.byAccount[rec.CreditAccountID] = append(s.byAccount[rec.CreditAccountID], rec.ID)
	if rec.Flags.Has(FlagPostPending) || rec.Flags.Has(FlagVoidPending) {
		s.resolutions[rec.PendingID] = rec.ID
	}
	u.transfers = append(u.transfers, rec)
	return ResultOK
}

func (s *MemoryStore) LookupTransfer(ctx context.Context, id uuid.UUID) (*TransferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) QueryAccountTransfers(ctx context.Context, accountID uuid.UUID, filter TransferFilter, limit int) ([]TransferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	ids := s.byAccount[accountID]
	out := make([]TransferRecord, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		t := s.transfers[ids[i]]
		if !filter.matches(accountID, t) {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() {}
