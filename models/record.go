package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the two record collections.
type Kind string

const (
	KindPayment     Kind = "payment"
	KindTransaction Kind = "transaction"
)

// ParseKind accepts singular or plural forms ("payments", "transaction").
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "s") {
	case string(KindPayment):
		return KindPayment, nil
	case string(KindTransaction):
		return KindTransaction, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// Status of a record. Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Direction is the stored type tag of a record, or its viewer-relative direction.
type Direction string

const (
	DirectionIncoming  Direction = "incoming"
	DirectionOutgoing  Direction = "outgoing"
	DirectionCompleted Direction = "completed"
)

// DefaultCurrency applies when a transaction does not name one.
const DefaultCurrency = "ZAR"

// Record is a payment or transaction request between two accounts.
// Only Status, Type, DecidedAt and DecidedBy change after creation.
type Record struct {
	ID                     uuid.UUID       `json:"id"`
	Kind                   Kind            `json:"kind"`
	SenderID               uuid.UUID       `json:"senderId"`
	RecipientID            uuid.UUID       `json:"recipientId"`
	RecipientAccountNumber string          `json:"recipientAccountNumber"`
	SwiftCode              string          `json:"swiftCode"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Status                 Status          `json:"status"`
	Type                   Direction       `json:"transactionType"`
	CreatedAt              time.Time       `json:"createdAt"`
	DecidedAt              *time.Time      `json:"decidedAt,omitempty"`
	DecidedBy              *uuid.UUID      `json:"decidedBy,omitempty"`
}

// Involves reports whether the account is the sender or the recipient.
func (r *Record) Involves(accountID uuid.UUID) bool {
	return r.SenderID == accountID || r.RecipientID == accountID
}

// RecordView is a record with its parties populated and its direction
// computed relative to the account viewing it.
type RecordView struct {
	Record
	Sender      PartySummary `json:"sender"`
	Recipient   PartySummary `json:"recipient"`
	Direction   Direction    `json:"direction,omitempty"`
	DisplayText string       `json:"displayText,omitempty"`
}

// NewRecordView builds the view of r for viewer. A zero viewer yields a
// neutral view without direction, as shown to reviewers.
func NewRecordView(r Record, sender, recipient PartySummary, viewer uuid.UUID) RecordView {
	v := RecordView{Record: r, Sender: sender, Recipient: recipient}
	switch viewer {
	case uuid.Nil:
	case r.SenderID:
		v.Direction = DirectionOutgoing
		v.DisplayText = fmt.Sprintf("Sent to %s", partyLabel(recipient))
	default:
		v.Direction = DirectionIncoming
		v.DisplayText = fmt.Sprintf("Received from %s", partyLabel(sender))
	}
	return v
}

func partyLabel(p PartySummary) string {
	name := strings.TrimSpace(p.Name + " " + p.Surname)
	if name == "" {
		return p.AccountNumber
	}
	return name
}
