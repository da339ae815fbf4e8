// Package approval moves records out of Pending. An approval transfers the
// amount between the two parties; a rejection only changes the status.
// Either way the record and both accounts are locked for the whole decision.
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payportal/internal/apperr"
	"payportal/internal/events"
	"payportal/internal/ledger"
	"payportal/internal/logging"
	"payportal/internal/metrics"
	"payportal/internal/store"
	"payportal/models"
)

// Engine decides pending records.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	metrics   metrics.Collector
	logger    *logging.Logger
	now       func() time.Time
}

func New(s store.Store, publisher events.Publisher, collector metrics.Collector, logger *logging.Logger) *Engine {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:     s,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.Named("approval"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Approve transfers the record's amount from sender to recipient and marks
// it Approved. On any failure nothing changes.
func (e *Engine) Approve(ctx context.Context, kind models.Kind, id, actor uuid.UUID) (*models.Record, error) {
	return e.decide(ctx, kind, id, actor, models.StatusApproved)
}

// Reject marks the record Rejected without touching balances.
func (e *Engine) Reject(ctx context.Context, kind models.Kind, id, actor uuid.UUID) (*models.Record, error) {
	return e.decide(ctx, kind, id, actor, models.StatusRejected)
}

func (e *Engine) decide(ctx context.Context, kind models.Kind, id, actor uuid.UUID, outcome models.Status) (*models.Record, error) {
	start := time.Now()
	decision := events.Decision{RecordID: id, Kind: kind, Outcome: outcome, ActorID: actor}

	var rec *models.Record
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.LockRecord(ctx, kind, id)
		if store.IsNotFound(err) {
			return apperr.NotFound(string(kind) + " not found")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if rec.Status != models.StatusPending {
			return apperr.Conflict(string(kind) + " already processed")
		}

		if outcome == models.StatusApproved {
			sender, recipient, err := ledger.Transfer(ctx, tx, rec.SenderID, rec.RecipientID, rec.Amount)
			if err != nil {
				return err
			}
			decision.SenderBalance = &sender.Balance
			decision.RecipientBalance = &recipient.Balance
			if kind == models.KindPayment {
				rec.Type = models.DirectionCompleted
			}
		}

		decidedAt := e.now()
		rec.Status = outcome
		rec.DecidedAt = &decidedAt
		rec.DecidedBy = &actor
		if err := tx.SaveDecision(ctx, rec); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})

	label := string(outcome)
	if err != nil {
		label = "failed_" + apperr.KindOf(err).String()
	}
	e.metrics.RecordDecision(string(kind), label, time.Since(start))

	if err != nil {
		e.logger.Warn("decision failed",
			zap.String("kind", string(kind)),
			zap.String("record_id", id.String()),
			zap.String("actor_id", actor.String()),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("record decided",
		zap.String("kind", string(kind)),
		zap.String("record_id", id.String()),
		zap.String("actor_id", actor.String()),
		zap.String("outcome", string(outcome)),
		zap.String("amount", rec.Amount.String()))

	decision.SenderID = rec.SenderID
	decision.RecipientID = rec.RecipientID
	decision.Amount = rec.Amount
	decision.Currency = rec.Currency
	decision.DecidedAt = *rec.DecidedAt
	if err := e.publisher.Publish(ctx, decision); err != nil {
		e.logger.Error("failed to publish decision",
			zap.String("record_id", id.String()),
			zap.Error(err))
	}
	return rec, nil
}
