// Package metrics records portal activity.
package metrics

import (
	"time"
)

// Collector receives measurements from the services and the HTTP layer.
type Collector interface {
	// Approval engine
	RecordDecision(kind, outcome string, duration time.Duration)

	// HTTP
	RecordRequest(method, route string, status int, duration time.Duration)

	// Decision events
	RecordPublish(success bool)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordDecision(kind, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordRequest(method, route string, status int, duration time.Duration) {}

func (NoOpCollector) RecordPublish(success bool) {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
