package types

import (
	"context"
	"time"
)

// Component is anything with an Open/Close lifecycle managed by the router.
type Component interface {
	Open(ctx context.Context) error
	Close() error
}

// Source is a component that produces *RecordBatch instances.
type Source interface {
	Component
	Queue() <-chan *RecordBatch
	Name() string
}

// Transformer is a component that transforms a RecordBatch. Transform is potentially called by multiple goroutines concurrently.
type Transformer interface {
	Component
	Transform(context.Context, *RecordBatch) (*RecordBatch, error)
	Name() string
}

// Sink is a component that delivers a RecordBatch to an external destination.
// Submit is potentially called by multiple goroutines concurrently.
type Sink interface {
	Component
	Submit(context.Context, *RecordBatch) DeliveryResult
	Name() string
}

type DeliveryStatus int

const (
	// DeliveryAcknowledged means the destination accepted the batch.
	DeliveryAcknowledged DeliveryStatus = iota
	// DeliveryRetryable means delivery failed but a later attempt may succeed.
	DeliveryRetryable
	// DeliveryTerminal means the batch can never be delivered and must be dropped.
	DeliveryTerminal
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryAcknowledged:
		return "acknowledged"
	case DeliveryRetryable:
		return "retryable"
	case DeliveryTerminal:
		return "terminal"
	}
	return "unknown"
}

// DeliveryResult is the outcome of a single Submit call.
type DeliveryResult struct {
	Status DeliveryStatus
	Reason error

	// RetryAfter is a sink-suggested delay before the next attempt.  Zero
	// leaves the delay to the caller's backoff policy.
	RetryAfter time.Duration
}

func Acknowledged() DeliveryResult {
	return DeliveryResult{Status: DeliveryAcknowledged}
}

func Retryable(reason error, after time.Duration) DeliveryResult {
	return DeliveryResult{Status: DeliveryRetryable, Reason: reason, RetryAfter: after}
}

func Terminal(reason error) DeliveryResult {
	return DeliveryResult{Status: DeliveryTerminal, Reason: reason}
}
