package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payportal/internal/store"
	"payportal/models"
)

func seedAccount(t *testing.T, s *Store, email, number, idNumber string, balance int64) *models.Account {
	t.Helper()
	acc := &models.Account{
		ID:            uuid.New(),
		Name:          "Test",
		Surname:       "User",
		Email:         email,
		Role:          models.RoleUser,
		AccountNumber: number,
		IDNumber:      idNumber,
		Balance:       decimal.NewFromInt(balance),
	}
	require.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

func TestCreateAccountConflicts(t *testing.T) {
	s := New()
	seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 0)

	tests := []struct {
		name  string
		acc   models.Account
		field string
	}{
		{"email", models.Account{ID: uuid.New(), Email: "A@example.com", AccountNumber: "2", IDNumber: "2"}, store.FieldEmail},
		{"account number", models.Account{ID: uuid.New(), Email: "b@example.com", AccountNumber: "1111111111", IDNumber: "3"}, store.FieldAccountNumber},
		{"id number", models.Account{ID: uuid.New(), Email: "c@example.com", AccountNumber: "4", IDNumber: "ID-A"}, store.FieldIDNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateAccount(context.Background(), &tt.acc)
			assert.ErrorIs(t, err, store.ErrConflict)
			assert.Equal(t, tt.field, store.ConflictField(err))
		})
	}
}

func TestLookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc := seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 10)

	got, err := s.AccountByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	got, err = s.AccountByNumber(ctx, "1111111111")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = s.AccountByID(ctx, uuid.New())
	assert.True(t, store.IsNotFound(err))

	taken, err := s.AccountNumberTaken(ctx, "1111111111")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.AccountNumberTaken(ctx, "9999999999")
	require.NoError(t, err)
	assert.False(t, taken)

	admin, err := s.AdminExists(ctx)
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestRecordOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 10)
	b := seedAccount(t, s, "b@example.com", "2222222222", "ID-B", 10)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec := &models.Record{ID: uuid.New(), Kind: models.KindPayment, SenderID: a.ID, RecipientID: b.ID, Amount: decimal.NewFromInt(1), Status: models.StatusPending}
		require.NoError(t, s.CreateRecord(ctx, rec))
		ids = append(ids, rec.ID)
	}

	pending, err := s.PendingRecords(ctx, models.KindPayment)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, ids[0], pending[0].ID)

	history, err := s.RecordsForParty(ctx, models.KindPayment, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].ID)

	none, err := s.RecordsForParty(ctx, models.KindTransaction, b.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInTxDiscardsWritesOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 100)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, a.ID, decimal.NewFromInt(1)); err != nil {
			return err
		}
		accs, err := tx.LockAccounts(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, accs[a.ID].Balance.Equal(decimal.NewFromInt(1)), "tx sees its own write")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))
}

func TestSetBalanceRejectsNegative(t *testing.T) {
	s := New()
	a := seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 100)

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, a.ID, decimal.NewFromInt(-1))
	})
	assert.Error(t, err)
}

func TestInTxSerializesConcurrentWork(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedAccount(t, s, "a@example.com", "1111111111", "ID-A", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				accs, err := tx.LockAccounts(ctx, a.ID)
				if err != nil {
					return err
				}
				return tx.SetBalance(ctx, a.ID, accs[a.ID].Balance.Add(decimal.NewFromInt(1)))
			})
		}()
	}
	wg.Wait()

	got, err := s.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(50)), "got %s", got.Balance)
}
