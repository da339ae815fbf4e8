package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"payportal/internal/logging"
	"payportal/internal/metrics"
)

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "record_decisions"

// ErrPublisherUnavailable is returned while the circuit is open.
var ErrPublisherUnavailable = errors.New("events: publisher unavailable")

// channel is the subset of *amqp.Channel used here.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitMQ connection wrapper
type RabbitMQ struct {
	conn    *amqp.Connection
	channel channel
	queue   string
	cb      *gobreaker.CircuitBreaker
	metrics metrics.Collector
	logger  *logging.Logger
}

// Dial connects to uri and declares the durable decision queue.
func Dial(uri, queue string, collector metrics.Collector, logger *logging.Logger) (*RabbitMQ, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declare queue: %w", err)
	}

	r := newRabbitMQ(ch, queue, collector, logger)
	r.conn = conn
	return r, nil
}

func newRabbitMQ(ch channel, queue string, collector metrics.Collector, logger *logging.Logger) *RabbitMQ {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("events")

	r := &RabbitMQ{channel: ch, queue: queue, metrics: collector, logger: logger}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "decision-publisher",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			collector.RecordCircuitState(name, state)
		},
	})
	return r
}

// Close connections
func (r *RabbitMQ) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

// Publish sends d as a persistent JSON message on the decision queue.
func (r *RabbitMQ) Publish(ctx context.Context, d Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}

	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.channel.Publish(
			"",      // exchange
			r.queue, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				DeliveryMode: amqp.Persistent,
				ContentType:  "application/json",
				MessageId:    d.RecordID.String(),
				Timestamp:    d.DecidedAt,
				Body:         body,
			},
		)
	})
	r.metrics.RecordPublish(err == nil)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrPublisherUnavailable
	}
	return err
}
