package engine

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/routeflow/routeflow/metrics"
	"github.com/routeflow/routeflow/pipeline/types"
	"github.com/routeflow/routeflow/pkg/logger"
)

// DeliveryObserver receives the outcome of every sink delivery attempt.
type DeliveryObserver interface {
	ObserveSinkDelivery(sink string, reason error)
}

type nopObserver struct{}

func (nopObserver) ObserveSinkDelivery(string, error) {}

// worker drives one pipeline edge: it pulls batches off the edge queue,
// applies the edge's transform chain and delivers the result to the edge's
// sink, retrying retryable failures with backoff.
type worker struct {
	SourceName string
	Input      <-chan *types.RecordBatch
	Transforms []types.Transformer
	Sink       types.Sink

	// MaxRetryDuration caps how long a single batch is retried.  Zero means
	// retry until acknowledged or shutdown.
	MaxRetryDuration time.Duration

	Observer DeliveryObserver
}

// Run processes incoming batches until the input channel is closed.  The
// context bounds in-flight deliveries at shutdown: cancelling it abandons the
// current batch after its next attempt.
func (w *worker) Run(ctx context.Context) {
	observer := w.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	for batch := range w.Input {
		select {
		case <-ctx.Done():
			// Cancelled mid-drain.  Settle the backlog without touching
			// the sink so a stuck delivery cannot stall the shutdown.
			metrics.BatchesLost.WithLabelValues(w.Sink.Name()).Inc()
			disposeBatch(batch)
			continue
		default:
		}
		w.processBatch(ctx, batch, observer)
	}
}

func (w *worker) processBatch(ctx context.Context, batch *types.RecordBatch, observer DeliveryObserver) {
	var err error
	for _, transform := range w.Transforms {
		batch, err = transform.Transform(ctx, batch)
		if err != nil {
			logger.Warnf("Failed to transform records from source %s -> %s: %v", w.SourceName, transform.Name(), err)
			metrics.RecordsDropped.WithLabelValues(w.SourceName, transform.Name()).Add(float64(len(batch.Records)))
			disposeBatch(batch)
			return
		}
	}

	if len(batch.Records) == 0 {
		batch.Ack()
		disposeBatch(batch)
		return
	}

	// Freeze the records in the batch to prevent further modifications
	for _, r := range batch.Records {
		r.Freeze()
	}

	w.deliver(ctx, batch, observer)
	disposeBatch(batch)
}

// deliver submits the batch until it is acknowledged, terminally rejected,
// the retry budget is exhausted, or ctx is cancelled.  Batches are never
// reordered: the worker does not pull the next batch until this one is
// settled.
func (w *worker) deliver(ctx context.Context, batch *types.RecordBatch, observer DeliveryObserver) {
	backoff := wait.Backoff{
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.25,
		Steps:    10,
		Cap:      60 * time.Second,
	}

	var deadline time.Time
	if w.MaxRetryDuration > 0 {
		deadline = time.Now().Add(w.MaxRetryDuration)
	}

	for {
		res := w.Sink.Submit(ctx, batch)
		switch res.Status {
		case types.DeliveryAcknowledged:
			metrics.RecordsSent.WithLabelValues(w.SourceName, w.Sink.Name()).Add(float64(len(batch.Records)))
			observer.ObserveSinkDelivery(w.Sink.Name(), nil)
			return

		case types.DeliveryTerminal:
			logger.Errorf("Dropping batch source=%s sink=%s records=%d: %v", w.SourceName, w.Sink.Name(), len(batch.Records), res.Reason)
			metrics.RecordsDropped.WithLabelValues(w.SourceName, w.Sink.Name()).Add(float64(len(batch.Records)))
			observer.ObserveSinkDelivery(w.Sink.Name(), nil)
			return

		case types.DeliveryRetryable:
			observer.ObserveSinkDelivery(w.Sink.Name(), res.Reason)
			metrics.SinkRetries.WithLabelValues(w.Sink.Name()).Inc()

			if !deadline.IsZero() && time.Now().After(deadline) {
				logger.Errorf("Retry budget exhausted source=%s sink=%s records=%d: %v", w.SourceName, w.Sink.Name(), len(batch.Records), res.Reason)
				metrics.RecordsDropped.WithLabelValues(w.SourceName, w.Sink.Name()).Add(float64(len(batch.Records)))
				return
			}

			delay := res.RetryAfter
			if delay <= 0 {
				delay = backoff.Step()
			}
			logger.Warnf("Retrying batch source=%s sink=%s records=%d in %s: %v", w.SourceName, w.Sink.Name(), len(batch.Records), delay.Round(time.Millisecond), res.Reason)

			select {
			case <-ctx.Done():
				logger.Errorf("Batch lost at shutdown source=%s sink=%s records=%d: %v", w.SourceName, w.Sink.Name(), len(batch.Records), res.Reason)
				metrics.BatchesLost.WithLabelValues(w.Sink.Name()).Inc()
				return
			case <-time.After(delay):
			}
		}
	}
}

func disposeBatch(batch *types.RecordBatch) {
	for _, r := range batch.Records {
		types.RecordPool.Put(r)
	}
	types.RecordBatchPool.Put(batch)
}
