// Package audit keeps an append-only trail of approval decisions in MongoDB.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entry is one decision as recorded in the trail. Amounts are kept as
// decimal strings.
type Entry struct {
	ID               string    `bson:"_id,omitempty" json:"id,omitempty"`
	RecordID         string    `bson:"record_id" json:"recordId"`
	Kind             string    `bson:"kind" json:"kind"`
	Outcome          string    `bson:"outcome" json:"outcome"`
	ActorID          string    `bson:"actor_id" json:"actorId"`
	SenderID         string    `bson:"sender_id" json:"senderId"`
	RecipientID      string    `bson:"recipient_id" json:"recipientId"`
	Amount           string    `bson:"amount" json:"amount"`
	Currency         string    `bson:"currency" json:"currency"`
	SenderBalance    string    `bson:"sender_balance,omitempty" json:"senderBalance,omitempty"`
	RecipientBalance string    `bson:"recipient_balance,omitempty" json:"recipientBalance,omitempty"`
	DecidedAt        time.Time `bson:"decided_at" json:"decidedAt"`
	RecordedAt       time.Time `bson:"recorded_at" json:"recordedAt"`
}

// Sink accepts entries.
type Sink interface {
	Insert(ctx context.Context, e Entry) error
}

// Trail reads entries back.
type Trail interface {
	ForRecord(ctx context.Context, kind, recordID string) ([]Entry, error)
}

// Store is the MongoDB-backed Sink and Trail.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri and verifies the connection.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	s := &Store{client: client, collection: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "record_id", Value: 1}, {Key: "decided_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("audit: create index: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if _, err := s.collection.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// ForRecord returns the entries for one record, oldest decision first.
func (s *Store) ForRecord(ctx context.Context, kind, recordID string) ([]Entry, error) {
	filter := bson.M{"kind": kind, "record_id": recordID}
	opts := options.Find().SetSort(bson.D{{Key: "decided_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("audit: find: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("audit: decode: %w", err)
	}
	return entries, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
