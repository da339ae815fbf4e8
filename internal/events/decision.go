// Package events carries approval decisions out of the request path.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payportal/internal/audit"
	"payportal/models"
)

// Decision is published once per committed approval or rejection.
type Decision struct {
	RecordID         uuid.UUID        `json:"record_id"`
	Kind             models.Kind      `json:"kind"`
	Outcome          models.Status    `json:"outcome"`
	ActorID          uuid.UUID        `json:"actor_id"`
	SenderID         uuid.UUID        `json:"sender_id"`
	RecipientID      uuid.UUID        `json:"recipient_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	SenderBalance    *decimal.Decimal `json:"sender_balance,omitempty"`
	RecipientBalance *decimal.Decimal `json:"recipient_balance,omitempty"`
	DecidedAt        time.Time        `json:"decided_at"`
}

// AuditEntry converts d into its audit trail form.
func (d Decision) AuditEntry() audit.Entry {
	e := audit.Entry{
		RecordID:    d.RecordID.String(),
		Kind:        string(d.Kind),
		Outcome:     string(d.Outcome),
		ActorID:     d.ActorID.String(),
		SenderID:    d.SenderID.String(),
		RecipientID: d.RecipientID.String(),
		Amount:      d.Amount.String(),
		Currency:    d.Currency,
		DecidedAt:   d.DecidedAt,
	}
	if d.SenderBalance != nil {
		e.SenderBalance = d.SenderBalance.String()
	}
	if d.RecipientBalance != nil {
		e.RecipientBalance = d.RecipientBalance.String()
	}
	return e
}

// Publisher hands decisions to whatever consumes them.
type Publisher interface {
	Publish(ctx context.Context, d Decision) error
}

// Discard drops every decision.
type Discard struct{}

func (Discard) Publish(ctx context.Context, d Decision) error { return nil }

// Direct writes decisions straight to an audit sink, for deployments
// without a broker.
type Direct struct {
	Sink audit.Sink
}

func (p Direct) Publish(ctx context.Context, d Decision) error {
	return p.Sink.Insert(ctx, d.AuditEntry())
}
