// Package ledger owns accounts: registration, lookups, credential checks and
// balance changes.
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payportal/internal/apperr"
	"payportal/internal/auth"
	"payportal/internal/logging"
	"payportal/internal/store"
	"payportal/models"
)

const minPasswordLength = 8

// Registration is the input to Register and RegisterAdmin.
type Registration struct {
	Name     string `validate:"required"`
	Surname  string `validate:"required"`
	IDNumber string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

// Balances are the opening balances per role.
type Balances struct {
	User  decimal.Decimal
	Admin decimal.Decimal
}

// Ledger is the account service.
type Ledger struct {
	store     store.Store
	passwords *auth.Passwords
	numbers   *NumberGenerator
	balances  Balances
	validate  *validator.Validate
	logger    *logging.Logger
}

func New(s store.Store, passwords *auth.Passwords, numbers *NumberGenerator, balances Balances, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{
		store:     s,
		passwords: passwords,
		numbers:   numbers,
		balances:  balances,
		validate:  validator.New(),
		logger:    logger.Named("ledger"),
	}
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user account with the default opening balance.
func (l *Ledger) Register(ctx context.Context, in Registration) (*models.Account, error) {
	return l.register(ctx, in, models.RoleUser, l.balances.User)
}

// RegisterAdmin creates an admin account with the admin opening balance.
func (l *Ledger) RegisterAdmin(ctx context.Context, in Registration) (*models.Account, error) {
	return l.register(ctx, in, models.RoleAdmin, l.balances.Admin)
}

func (l *Ledger) register(ctx context.Context, in Registration, role models.Role, balance decimal.Decimal) (*models.Account, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.IDNumber = strings.TrimSpace(in.IDNumber)
	if err := l.checkRegistration(in); err != nil {
		return nil, err
	}

	if _, err := l.store.AccountByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict("user already exists")
	} else if !store.IsNotFound(err) {
		return nil, apperr.Internal(err)
	}

	hash, err := l.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	for attempt := 0; attempt < maxDraws; attempt++ {
		number, err := l.numbers.Next(ctx)
		if err != nil {
			return nil, apperr.Internal(err)
		}

		acc := &models.Account{
			ID:            uuid.New(),
			Name:          in.Name,
			Surname:       in.Surname,
			Email:         in.Email,
			PasswordHash:  hash,
			Role:          role,
			AccountNumber: number,
			IDNumber:      in.IDNumber,
			Balance:       balance,
		}
		err = l.store.CreateAccount(ctx, acc)
		switch store.ConflictField(err) {
		case "":
			if err != nil {
				return nil, apperr.Internal(err)
			}
			l.numbers.Mark(number)
			l.logger.Info("account registered",
				zap.String("account_id", acc.ID.String()),
				zap.String("role", string(role)))
			return acc, nil
		case store.FieldAccountNumber:
			l.numbers.Mark(number)
			continue
		case store.FieldEmail:
			return nil, apperr.Conflict("user already exists")
		case store.FieldIDNumber:
			return nil, apperr.Conflict("id number already registered")
		default:
			return nil, apperr.Internal(err)
		}
	}
	return nil, apperr.Internal(ErrNumbersExhausted)
}

func (l *Ledger) checkRegistration(in Registration) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Internal(err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Email" && fe.Tag() == "email":
		return apperr.Validation("invalid email")
	case fe.Field() == "Password" && fe.Tag() == "min":
		return apperr.Validation("password must be at least 8 characters")
	default:
		return apperr.Validation(strings.ToLower(fe.Field()) + " is required")
	}
}

// Authenticate returns the account matching the credentials. Unknown email
// and wrong password are indistinguishable to the caller.
func (l *Ledger) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	acc, err := l.store.AccountByEmail(ctx, NormalizeEmail(email))
	if store.IsNotFound(err) {
		return nil, apperr.InvalidCredentials()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !l.passwords.Matches(acc.PasswordHash, password) {
		return nil, apperr.InvalidCredentials()
	}
	return acc, nil
}

// FindByEmail returns nil without error when no account matches.
func (l *Ledger) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return found(l.store.AccountByEmail(ctx, NormalizeEmail(email)))
}

// FindByAccountNumber returns nil without error when no account matches.
func (l *Ledger) FindByAccountNumber(ctx context.Context, number string) (*models.Account, error) {
	return found(l.store.AccountByNumber(ctx, strings.TrimSpace(number)))
}

// FindByID returns nil without error when no account matches.
func (l *Ledger) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return found(l.store.AccountByID(ctx, id))
}

func found(acc *models.Account, err error) (*models.Account, error) {
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return acc, nil
}

// AdjustBalance adds delta to the account's balance under a row lock.
func (l *Ledger) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (*models.Account, error) {
	var out *models.Account
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		accs, err := tx.LockAccounts(ctx, id)
		if store.IsNotFound(err) {
			return apperr.NotFound("account not found")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		acc := accs[id]
		next := acc.Balance.Add(delta)
		if next.IsNegative() {
			return apperr.InsufficientFunds()
		}
		if err := tx.SetBalance(ctx, id, next); err != nil {
			return apperr.Internal(err)
		}
		acc.Balance = next
		out = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer moves amount from sender to recipient inside tx. Both rows are
// locked before the balance check, so the check and the writes are atomic
// with the rest of the caller's unit of work.
func Transfer(ctx context.Context, tx store.Tx, senderID, recipientID uuid.UUID, amount decimal.Decimal) (sender, recipient *models.Account, err error) {
	if !amount.IsPositive() {
		return nil, nil, apperr.Validation("amount must be positive")
	}
	if senderID == recipientID {
		return nil, nil, apperr.Validation("sender and recipient must differ")
	}

	accs, err := tx.LockAccounts(ctx, senderID, recipientID)
	if store.IsNotFound(err) {
		return nil, nil, apperr.NotFound("sender or recipient not found")
	}
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	sender, recipient = accs[senderID], accs[recipientID]

	if sender.Balance.LessThan(amount) {
		return nil, nil, apperr.InsufficientFunds()
	}
	sender.Balance = sender.Balance.Sub(amount)
	recipient.Balance = recipient.Balance.Add(amount)

	if err := tx.SetBalance(ctx, sender.ID, sender.Balance); err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if err := tx.SetBalance(ctx, recipient.ID, recipient.Balance); err != nil {
		return nil, nil, apperr.Internal(err)
	}
	return sender, recipient, nil
}

// ErrNoAdminPassword is returned by EnsureAdmin when it would have to create
// an admin but no password is configured.
var ErrNoAdminPassword = errors.New("ledger: admin password not configured")

// EnsureAdmin creates the seed admin when no admin account exists. It
// reports whether an account was created.
func (l *Ledger) EnsureAdmin(ctx context.Context, seed Registration) (bool, error) {
	exists, err := l.store.AdminExists(ctx)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if exists {
		return false, nil
	}
	if seed.Password == "" {
		return false, ErrNoAdminPassword
	}

	acc, err := l.RegisterAdmin(ctx, seed)
	if err != nil {
		return false, err
	}
	l.logger.Info("default admin created", zap.String("email", acc.Email))
	return true, nil
}

// Warm seeds the account-number filter from storage.
func (l *Ledger) Warm(ctx context.Context) error {
	n, err := l.numbers.Warm(ctx)
	if err != nil {
		return err
	}
	l.logger.Debug("account numbers loaded", zap.Int("count", n))
	return nil
}
