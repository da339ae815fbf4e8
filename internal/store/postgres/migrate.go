package postgres

import (
	"context"
	"fmt"
)

// recordTable is shared by payments and transactions; both carry a durable
// recipient reference captured when the record is created.
const recordTable = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	sender_id UUID NOT NULL REFERENCES accounts(id),
	recipient_id UUID NOT NULL REFERENCES accounts(id),
	recipient_account_number TEXT NOT NULL,
	swift_code TEXT NOT NULL,
	amount NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
	currency TEXT NOT NULL DEFAULT 'ZAR',
	status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Approved', 'Rejected')),
	transaction_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	decided_at TIMESTAMPTZ,
	decided_by UUID REFERENCES accounts(id)
)`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		account_number TEXT NOT NULL,
		id_number TEXT NOT NULL,
		balance NUMERIC(18, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT accounts_email_key UNIQUE (email),
		CONSTRAINT accounts_account_number_key UNIQUE (account_number),
		CONSTRAINT accounts_id_number_key UNIQUE (id_number)
	)`,
	fmt.Sprintf(recordTable, "payments"),
	fmt.Sprintf(recordTable, "transactions"),
	`CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS payments_sender_idx ON payments (sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS payments_recipient_idx ON payments (recipient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS transactions_sender_idx ON transactions (sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS transactions_recipient_idx ON transactions (recipient_id, created_at DESC)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
