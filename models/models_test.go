package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"Admin", "", true},
		{"superuser", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"payment", KindPayment, false},
		{"payments", KindPayment, false},
		{"Transactions", KindTransaction, false},
		{"transaction", KindTransaction, false},
		{"refund", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

func TestNewRecordView(t *testing.T) {
	alice := PartySummary{ID: uuid.New(), Name: "Alice", Surname: "Smith", AccountNumber: "1234567890"}
	bob := PartySummary{ID: uuid.New(), Name: "Bob", Surname: "Jones", AccountNumber: "9876543210"}
	rec := Record{
		ID:          uuid.New(),
		Kind:        KindPayment,
		SenderID:    alice.ID,
		RecipientID: bob.ID,
		Amount:      decimal.NewFromInt(2000),
		Status:      StatusPending,
		Type:        DirectionOutgoing,
	}

	sent := NewRecordView(rec, alice, bob, alice.ID)
	assert.Equal(t, DirectionOutgoing, sent.Direction)
	assert.Equal(t, "Sent to Bob Jones", sent.DisplayText)

	received := NewRecordView(rec, alice, bob, bob.ID)
	assert.Equal(t, DirectionIncoming, received.Direction)
	assert.Equal(t, "Received from Alice Smith", received.DisplayText)

	neutral := NewRecordView(rec, alice, bob, uuid.Nil)
	assert.Empty(t, neutral.Direction)
	assert.Empty(t, neutral.DisplayText)
	assert.Equal(t, bob, neutral.Recipient)
}

func TestRecordInvolves(t *testing.T) {
	rec := Record{SenderID: uuid.New(), RecipientID: uuid.New()}
	assert.True(t, rec.Involves(rec.SenderID))
	assert.True(t, rec.Involves(rec.RecipientID))
	assert.False(t, rec.Involves(uuid.New()))
}
