package sinks

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/routeflow/routeflow/pipeline/types"
)

// ConsoleSink writes records as newline-delimited JSON to stdout.  Delivery
// is best effort: it always acknowledges and never retries.
type ConsoleSink struct {
	name string

	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink(name string) *ConsoleSink {
	return &ConsoleSink{name: name, out: os.Stdout}
}

func (s *ConsoleSink) Open(ctx context.Context) error {
	return nil
}

func (s *ConsoleSink) Submit(ctx context.Context, batch *types.RecordBatch) types.DeliveryResult {
	s.mu.Lock()
	enc := json.NewEncoder(s.out)
	for _, r := range batch.Records {
		// Best effort, encode errors are ignored.
		enc.Encode(r.Fields())
	}
	s.mu.Unlock()
	batch.Ack()
	return types.Acknowledged()
}

func (s *ConsoleSink) Close() error {
	return nil
}

func (s *ConsoleSink) Name() string {
	return s.name
}
