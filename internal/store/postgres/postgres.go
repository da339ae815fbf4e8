// Package postgres implements store.Store on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"payportal/internal/store"
	"payportal/models"
)

const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL with the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a database transaction, committing only when fn
// succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const accountColumns = `id, name, surname, email, password_hash, role, account_number, id_number, balance, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var acc models.Account
	var role string
	err := row.Scan(&acc.ID, &acc.Name, &acc.Surname, &acc.Email, &acc.PasswordHash,
		&role, &acc.AccountNumber, &acc.IDNumber, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if acc.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *models.Account) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, name, surname, email, password_hash, role, account_number, id_number, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`,
		acc.ID, acc.Name, acc.Surname, acc.Email, acc.PasswordHash,
		string(acc.Role), acc.AccountNumber, acc.IDNumber, acc.Balance,
	).Scan(&acc.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *Store) AccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	out := make(map[uuid.UUID]*models.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acc.ID] = acc
	}
	return out, rows.Err()
}

func (s *Store) AccountNumberTaken(ctx context.Context, number string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1)`, number).Scan(&taken)
	return taken, err
}

func (s *Store) AccountNumbers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_number FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (s *Store) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE role = $1)`, string(models.RoleAdmin)).Scan(&exists)
	return exists, err
}

// tableFor maps a record kind onto its table. Table names never come from input.
func tableFor(kind models.Kind) (string, error) {
	switch kind {
	case models.KindPayment:
		return "payments", nil
	case models.KindTransaction:
		return "transactions", nil
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
}

const recordColumns = `id, sender_id, recipient_id, recipient_account_number, swift_code, amount, currency, status, transaction_type, created_at, decided_at, decided_by`

func scanRecord(row interface{ Scan(...any) error }, kind models.Kind) (*models.Record, error) {
	rec := models.Record{Kind: kind}
	var status, typ string
	var decidedAt sql.NullTime
	var decidedBy uuid.NullUUID
	err := row.Scan(&rec.ID, &rec.SenderID, &rec.RecipientID, &rec.RecipientAccountNumber,
		&rec.SwiftCode, &rec.Amount, &rec.Currency, &status, &typ, &rec.CreatedAt,
		&decidedAt, &decidedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec.Status = models.Status(status)
	rec.Type = models.Direction(typ)
	if decidedAt.Valid {
		t := decidedAt.Time
		rec.DecidedAt = &t
	}
	if decidedBy.Valid {
		id := decidedBy.UUID
		rec.DecidedBy = &id
	}
	return &rec, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec *models.Record) error {
	table, err := tableFor(rec.Kind)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO `+table+` (id, sender_id, recipient_id, recipient_account_number, swift_code, amount, currency, status, transaction_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`,
		rec.ID, rec.SenderID, rec.RecipientID, rec.RecipientAccountNumber, rec.SwiftCode,
		rec.Amount, rec.Currency, string(rec.Status), string(rec.Type),
	).Scan(&rec.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) RecordByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = $1`, id), kind)
}

func (s *Store) PendingRecords(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, kind,
		`SELECT `+recordColumns+` FROM `+table+` WHERE status = $1 ORDER BY created_at ASC`,
		string(models.StatusPending))
}

func (s *Store) RecordsForParty(ctx context.Context, kind models.Kind, accountID uuid.UUID) ([]models.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, kind,
		`SELECT `+recordColumns+` FROM `+table+` WHERE sender_id = $1 OR recipient_id = $1 ORDER BY created_at DESC`,
		accountID)
}

func (s *Store) queryRecords(ctx context.Context, kind models.Kind, query string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// txStore implements store.Tx on a *sql.Tx.
type txStore struct {
	q querier
}

func (t *txStore) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	// Deadlock prevention: consistent lock order
	ordered := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	out := make(map[uuid.UUID]*models.Account, len(ordered))
	for _, id := range ordered {
		acc, err := scanAccount(t.q.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		out[id] = acc
	}
	return out, nil
}

func (t *txStore) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return fmt.Errorf("update balance for account %s: %w", id, err)
	}
	return expectOne(res)
}

func (t *txStore) LockRecord(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return scanRecord(t.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = $1 FOR UPDATE`, id), kind)
}

func (t *txStore) SaveDecision(ctx context.Context, rec *models.Record) error {
	table, err := tableFor(rec.Kind)
	if err != nil {
		return err
	}
	var decidedBy uuid.NullUUID
	if rec.DecidedBy != nil {
		decidedBy = uuid.NullUUID{UUID: *rec.DecidedBy, Valid: true}
	}
	res, err := t.q.ExecContext(ctx,
		`UPDATE `+table+` SET status = $1, transaction_type = $2, decided_at = $3, decided_by = $4 WHERE id = $5`,
		string(rec.Status), string(rec.Type), rec.DecidedAt, decidedBy, rec.ID)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", rec.Kind, rec.ID, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// translate turns unique violations into *store.ConflictError.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "accounts_email_key":
			return &store.ConflictError{Field: store.FieldEmail}
		case "accounts_account_number_key":
			return &store.ConflictError{Field: store.FieldAccountNumber}
		case "accounts_id_number_key":
			return &store.ConflictError{Field: store.FieldIDNumber}
		default:
			return &store.ConflictError{Field: store.FieldID}
		}
	}
	return err
}
