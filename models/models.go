package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole rejects anything outside the known roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Account is a ledger entry: identity, role, account number and balance.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Surname       string          `json:"surname"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	Role          Role            `json:"role"`
	AccountNumber string          `json:"accountNumber"`
	IDNumber      string          `json:"idNumber"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Summary is the subset of an account shown next to a record.
func (a *Account) Summary() PartySummary {
	return PartySummary{
		ID:            a.ID,
		Name:          a.Name,
		Surname:       a.Surname,
		Email:         a.Email,
		AccountNumber: a.AccountNumber,
	}
}

// PartySummary identifies one side of a record in API responses.
type PartySummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Surname       string    `json:"surname"`
	Email         string    `json:"email"`
	AccountNumber string    `json:"accountNumber"`
}
