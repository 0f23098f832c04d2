package sinks

import (
	"context"
	"sync"

	"github.com/routeflow/routeflow/pipeline/types"
)

// CountingSink acknowledges every batch and signals once an expected number
// of records has arrived.  Used by tests.
type CountingSink struct {
	name          string
	expectedCount int64
	currentCount  int64

	lock        sync.Mutex
	done        bool
	doneChannel chan int64
}

func NewCountingSink(expectedCount int64) *CountingSink {
	return &CountingSink{
		name:          "counting",
		expectedCount: expectedCount,
		currentCount:  0,
		done:          false,
		doneChannel:   make(chan int64, 1),
	}
}

func (s *CountingSink) Open(ctx context.Context) error {
	return nil
}

func (s *CountingSink) Submit(ctx context.Context, batch *types.RecordBatch) types.DeliveryResult {
	s.lock.Lock()
	s.currentCount += int64(len(batch.Records))
	batch.Ack()
	if !s.done && s.currentCount >= s.expectedCount {
		s.done = true
		s.doneChannel <- s.currentCount
		close(s.doneChannel)
	}
	s.lock.Unlock()
	return types.Acknowledged()
}

func (s *CountingSink) Close() error {
	return nil
}

func (s *CountingSink) Name() string {
	return s.name
}

func (s *CountingSink) DoneChan() chan int64 {
	return s.doneChannel
}
