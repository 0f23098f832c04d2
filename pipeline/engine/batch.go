package engine

import (
	"context"
	"time"

	"github.com/routeflow/routeflow/pipeline/types"
)

type BatchConfig struct {
	MaxBatchSize int
	MaxBatchWait time.Duration
	InputQueue   <-chan *types.Record
	OutputQueue  chan<- *types.RecordBatch
	AckGenerator func(r *types.Record) func()
}

// BatchRecords accumulates records from InputQueue into batches flushed by
// size or age.  It closes OutputQueue when ctx is cancelled, after flushing
// any partial batch and whatever records InputQueue still buffers.
func BatchRecords(ctx context.Context, config BatchConfig) error {
	ticker := time.NewTicker(config.MaxBatchWait)
	defer ticker.Stop()

	currentBatch := types.RecordBatchPool.Get(1024).(*types.RecordBatch)
	currentBatch.Reset()
	for {
		select {
		case <-ctx.Done():
			// The source read loop stops on the same cancellation, so one
			// non-blocking sweep of InputQueue picks up everything it
			// produced before stopping.
			for buffered := true; buffered; {
				select {
				case msg := <-config.InputQueue:
					currentBatch.Records = append(currentBatch.Records, msg)
					if len(currentBatch.Records) >= config.MaxBatchSize {
						flush(config, currentBatch)
						currentBatch = types.RecordBatchPool.Get(1024).(*types.RecordBatch)
						currentBatch.Reset()
					}
				default:
					buffered = false
				}
			}
			if len(currentBatch.Records) != 0 {
				flush(config, currentBatch)
			}
			close(config.OutputQueue)
			return nil
		case <-ticker.C:
			if len(currentBatch.Records) != 0 {
				flush(config, currentBatch)
				currentBatch = types.RecordBatchPool.Get(1024).(*types.RecordBatch)
				currentBatch.Reset()
			}
		case msg := <-config.InputQueue:
			currentBatch.Records = append(currentBatch.Records, msg)
			if len(currentBatch.Records) >= config.MaxBatchSize {
				flush(config, currentBatch)
				currentBatch = types.RecordBatchPool.Get(1024).(*types.RecordBatch)
				currentBatch.Reset()
				ticker.Reset(config.MaxBatchWait)
			}
		}
	}
}

func flush(config BatchConfig, currentBatch *types.RecordBatch) {
	lastMsg := currentBatch.Records[len(currentBatch.Records)-1]
	currentBatch.Ack = config.AckGenerator(lastMsg)
	config.OutputQueue <- currentBatch
}
