package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"payportal/internal/audit"
	"payportal/internal/logging"
)

// AuditConsumer writes every decision on the queue to the audit trail.
type AuditConsumer struct {
	rabbitMQ *RabbitMQ
	sink     audit.Sink
	logger   *logging.Logger
}

func NewAuditConsumer(rabbitMQ *RabbitMQ, sink audit.Sink, logger *logging.Logger) *AuditConsumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AuditConsumer{rabbitMQ: rabbitMQ, sink: sink, logger: logger.Named("audit-consumer")}
}

// Run consumes until ctx is done or the delivery channel closes.
func (ac *AuditConsumer) Run(ctx context.Context) error {
	msgs, err := ac.rabbitMQ.channel.Consume(
		ac.rabbitMQ.queue, // queue
		"",                // consumer
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,               // args
	)
	if err != nil {
		return fmt.Errorf("events: register consumer: %w", err)
	}

	ac.logger.Info("waiting for decision messages", zap.String("queue", ac.rabbitMQ.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			ac.handle(ctx, d)
		}
	}
}

func (ac *AuditConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var decision Decision
	if err := json.Unmarshal(d.Body, &decision); err != nil {
		ac.logger.Error("dropping undecodable decision", zap.Error(err))
		d.Nack(false, false)
		return
	}

	if err := ac.sink.Insert(ctx, decision.AuditEntry()); err != nil {
		ac.logger.Warn("audit insert failed, requeueing",
			zap.String("record_id", decision.RecordID.String()),
			zap.Error(err))
		d.Nack(false, true)
		return
	}

	d.Ack(false)
}
