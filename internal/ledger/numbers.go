package ledger

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"payportal/internal/store"
)

const (
	minAccountNumber = 1_000_000_000
	maxAccountNumber = 9_999_999_999

	// maxDraws bounds the search for an unused account number.
	maxDraws = 64
)

// ErrNumbersExhausted is returned when maxDraws candidates were all taken.
var ErrNumbersExhausted = errors.New("ledger: no free account number found")

// NumberGenerator draws random ten-digit account numbers. A bloom filter of
// numbers known to be in use lets most draws skip the existence query.
type NumberGenerator struct {
	accounts store.Accounts
	draw     func() int64

	mu     sync.RWMutex
	filter *bloom.BloomFilter

	queries  uint64
	screened uint64
}

// NewNumberGenerator sizes the filter for expectedAccounts at a 1% false
// positive rate.
func NewNumberGenerator(accounts store.Accounts, expectedAccounts uint) *NumberGenerator {
	if expectedAccounts == 0 {
		expectedAccounts = 100000
	}
	return &NumberGenerator{
		accounts: accounts,
		draw:     func() int64 { return minAccountNumber + rand.Int64N(maxAccountNumber-minAccountNumber+1) },
		filter:   bloom.NewWithEstimates(expectedAccounts, 0.01),
	}
}

// Warm loads every existing account number into the filter.
func (g *NumberGenerator) Warm(ctx context.Context) (int, error) {
	numbers, err := g.accounts.AccountNumbers(ctx)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range numbers {
		g.filter.AddString(n)
	}
	return len(numbers), nil
}

// Mark records number as in use.
func (g *NumberGenerator) Mark(number string) {
	g.mu.Lock()
	g.filter.AddString(number)
	g.mu.Unlock()
}

// Next returns a number not currently in use. The unique constraint on
// insert remains the final guard against a concurrent claim.
func (g *NumberGenerator) Next(ctx context.Context) (string, error) {
	for i := 0; i < maxDraws; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		number := strconv.FormatInt(g.draw(), 10)

		g.mu.Lock()
		mayExist := g.filter.TestString(number)
		if !mayExist {
			g.screened++
		}
		g.mu.Unlock()
		if !mayExist {
			return number, nil
		}

		g.mu.Lock()
		g.queries++
		g.mu.Unlock()
		taken, err := g.accounts.AccountNumberTaken(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", ErrNumbersExhausted
}

// NumberStats counts how draws were resolved.
type NumberStats struct {
	Screened uint64
	Queried  uint64
}

func (g *NumberGenerator) Stats() NumberStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return NumberStats{Screened: g.screened, Queried: g.queries}
}
