// Package memory is an in-process store.Store. Transactions are serialized
// and their writes staged until commit, so a failed unit of work leaves no
// trace.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payportal/internal/store"
	"payportal/models"
)

// Store holds accounts and records in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	accounts map[uuid.UUID]models.Account
	records  map[models.Kind]map[uuid.UUID]models.Record
	seq      map[uuid.UUID]uint64
	next     uint64
	now      func() time.Time
}

// errNegativeBalance mirrors the balance CHECK constraint of the SQL schema.
var errNegativeBalance = errors.New("memory: balance would become negative")

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]models.Account),
		records: map[models.Kind]map[uuid.UUID]models.Record{
			models.KindPayment:     make(map[uuid.UUID]models.Record),
			models.KindTransaction: make(map[uuid.UUID]models.Record),
		},
		seq: make(map[uuid.UUID]uint64),
		now: time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) CreateAccount(ctx context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acc.ID]; ok {
		return &store.ConflictError{Field: store.FieldID}
	}
	for _, existing := range s.accounts {
		switch {
		case strings.EqualFold(existing.Email, acc.Email):
			return &store.ConflictError{Field: store.FieldEmail}
		case existing.AccountNumber == acc.AccountNumber:
			return &store.ConflictError{Field: store.FieldAccountNumber}
		case existing.IDNumber == acc.IDNumber:
			return &store.ConflictError{Field: store.FieldIDNumber}
		}
	}
	acc.CreatedAt = s.now()
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *Store) findAccount(match func(a *models.Account) bool) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if match(&a) {
			out := a
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findAccount(func(a *models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (s *Store) AccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return s.findAccount(func(a *models.Account) bool { return a.AccountNumber == number })
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = &a
		}
	}
	return out, nil
}

func (s *Store) AccountNumberTaken(ctx context.Context, number string) (bool, error) {
	_, err := s.AccountByNumber(ctx, number)
	if store.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) AccountNumbers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	numbers := make([]string, 0, len(s.accounts))
	for _, a := range s.accounts {
		numbers = append(numbers, a.AccountNumber)
	}
	return numbers, nil
}

func (s *Store) AdminExists(ctx context.Context) (bool, error) {
	_, err := s.findAccount(func(a *models.Account) bool { return a.Role == models.RoleAdmin })
	if store.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) table(kind models.Kind) (map[uuid.UUID]models.Record, error) {
	t, ok := s.records[kind]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(rec.Kind)
	if err != nil {
		return err
	}
	if _, ok := t[rec.ID]; ok {
		return &store.ConflictError{Field: store.FieldID}
	}
	rec.CreatedAt = s.now()
	s.next++
	s.seq[rec.ID] = s.next
	t[rec.ID] = *rec
	return nil
}

func (s *Store) RecordByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	r, ok := t[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) PendingRecords(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	recs, err := s.filter(kind, func(r *models.Record) bool { return r.Status == models.StatusPending })
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return s.seqOf(recs[i].ID) < s.seqOf(recs[j].ID) })
	return recs, nil
}

func (s *Store) RecordsForParty(ctx context.Context, kind models.Kind, accountID uuid.UUID) ([]models.Record, error) {
	recs, err := s.filter(kind, func(r *models.Record) bool { return r.Involves(accountID) })
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return s.seqOf(recs[i].ID) > s.seqOf(recs[j].ID) })
	return recs, nil
}

func (s *Store) filter(kind models.Kind, keep func(r *models.Record) bool) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	var out []models.Record
	for _, r := range t {
		if keep(&r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) seqOf(id uuid.UUID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq[id]
}

// InTx serializes units of work. Writes are applied only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:        s,
		balances: make(map[uuid.UUID]decimal.Decimal),
		records:  make(map[uuid.UUID]models.Record),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bal := range tx.balances {
		a := s.accounts[id]
		a.Balance = bal
		s.accounts[id] = a
	}
	for id, r := range tx.records {
		s.records[r.Kind][id] = r
	}
	return nil
}

type memTx struct {
	s        *Store
	balances map[uuid.UUID]decimal.Decimal
	records  map[uuid.UUID]models.Record
}

func (t *memTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	for _, id := range ids {
		a, err := t.s.AccountByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if bal, ok := t.balances[id]; ok {
			a.Balance = bal
		}
		out[id] = a
	}
	return out, nil
}

func (t *memTx) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	if _, err := t.s.AccountByID(ctx, id); err != nil {
		return err
	}
	if balance.IsNegative() {
		return errNegativeBalance
	}
	t.balances[id] = balance
	return nil
}

func (t *memTx) LockRecord(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error) {
	if r, ok := t.records[id]; ok && r.Kind == kind {
		return &r, nil
	}
	return t.s.RecordByID(ctx, kind, id)
}

func (t *memTx) SaveDecision(ctx context.Context, rec *models.Record) error {
	if _, err := t.s.RecordByID(ctx, rec.Kind, rec.ID); err != nil {
		return err
	}
	t.records[rec.ID] = *rec
	return nil
}
