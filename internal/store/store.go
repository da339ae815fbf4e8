// Package store defines the persistence contracts shared by the ledger,
// the record stores and the approval engine.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payportal/models"
)

var (
	// ErrNotFound is returned when a requested account or record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("store: unique constraint violated")
)

// Conflicting fields reported by ConflictError.
const (
	FieldEmail         = "email"
	FieldAccountNumber = "account_number"
	FieldIDNumber      = "id_number"
	FieldID            = "id"
)

// ConflictError reports which unique field an insert collided on.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return "store: duplicate " + e.Field
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsNotFound checks if err indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ConflictField returns the colliding field, or "" if err is not a conflict.
func ConflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

// Accounts is the read/insert side of the ledger.
type Accounts interface {
	CreateAccount(ctx context.Context, acc *models.Account) error
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByNumber(ctx context.Context, number string) (*models.Account, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error)
	AccountNumberTaken(ctx context.Context, number string) (bool, error)
	AccountNumbers(ctx context.Context) ([]string, error)
	AdminExists(ctx context.Context) (bool, error)
}

// Records is the read/insert side of the payment and transaction stores.
type Records interface {
	CreateRecord(ctx context.Context, rec *models.Record) error
	RecordByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error)
	// PendingRecords returns pending records oldest first.
	PendingRecords(ctx context.Context, kind models.Kind) ([]models.Record, error)
	// RecordsForParty returns records where the account is sender or
	// recipient, newest first.
	RecordsForParty(ctx context.Context, kind models.Kind, accountID uuid.UUID) ([]models.Record, error)
}

// Tx is a unit of work holding row locks until it ends.
type Tx interface {
	// LockAccounts locks the given accounts in id order and returns them
	// keyed by id. A missing account yields ErrNotFound.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	LockRecord(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error)
	// SaveDecision persists the mutable fields of rec: status, type and
	// the decision stamp.
	SaveDecision(ctx context.Context, rec *models.Record) error
}

// Store is the full persistence surface.
type Store interface {
	Accounts
	Records
	// InTx runs fn in a transaction. Nothing fn wrote is visible to others
	// unless fn returns nil and the commit succeeds.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
