package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestMongo(t *testing.T) *Store {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Connect(ctx, "mongodb://localhost:27017/?serverSelectionTimeoutMS=1000", "payportal_test", "decision_audit_"+uuid.NewString()[:8])
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		_ = s.collection.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestStore_InsertAndForRecord(t *testing.T) {
	s := setupTestMongo(t)
	ctx := context.Background()
	recordID := uuid.NewString()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, Entry{RecordID: recordID, Kind: "payment", Outcome: "Rejected", Amount: "10", DecidedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Insert(ctx, Entry{RecordID: recordID, Kind: "payment", Outcome: "Approved", Amount: "10", DecidedAt: base}))
	require.NoError(t, s.Insert(ctx, Entry{RecordID: recordID, Kind: "transaction", Outcome: "Approved", Amount: "10", DecidedAt: base}))

	entries, err := s.ForRecord(ctx, "payment", recordID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Approved", entries[0].Outcome)
	assert.Equal(t, "Rejected", entries[1].Outcome)
	assert.False(t, entries[0].RecordedAt.IsZero())

	none, err := s.ForRecord(ctx, "payment", uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}
