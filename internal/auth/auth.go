// Package auth issues and verifies bearer tokens, hashes passwords and
// gates routes by permission.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"payportal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims carried by a bearer token.
type Claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.StandardClaims
}

// Principal is the verified identity behind a request.
type Principal struct {
	AccountID uuid.UUID
	Role      models.Role
}

// Can reports whether the principal holds permission p.
func (p Principal) Can(perm Permission) bool {
	return Allowed(p.Role, perm)
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokens returns a token issuer. ttl is the fixed lifetime of every token.
func NewTokens(secret string, ttl time.Duration, issuer string) *Tokens {
	return &Tokens{key: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue signs a token for the account.
func (t *Tokens) Issue(acc *models.Account) (string, error) {
	now := t.now()
	claims := &Claims{
		ID:   acc.ID.String(),
		Role: string(acc.Role),
		StandardClaims: jwt.StandardClaims{
			Subject:   acc.ID.String(),
			Issuer:    t.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its principal. Tokens with an unknown
// role are rejected.
func (t *Tokens) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrInvalidToken
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{AccountID: id, Role: role}, nil
}

// Passwords hashes and checks passwords with bcrypt.
type Passwords struct {
	cost int
}

func NewPasswords(cost int) *Passwords {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Passwords{cost: cost}
}

func (p *Passwords) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Matches reports whether password matches the stored hash.
func (p *Passwords) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
