package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow/pipeline/types"
)

func noopAck(r *types.Record) func() { return func() {} }

func TestBatchRecordsFlushesAtMaxSize(t *testing.T) {
	input := make(chan *types.Record, 10)
	output := make(chan *types.RecordBatch, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go BatchRecords(ctx, BatchConfig{
		MaxBatchSize: 3,
		MaxBatchWait: time.Hour,
		InputQueue:   input,
		OutputQueue:  output,
		AckGenerator: noopAck,
	})

	for i := 0; i < 3; i++ {
		r := types.NewRecord()
		r.Set("seq", int64(i))
		input <- r
	}

	select {
	case batch := <-output:
		require.Len(t, batch.Records, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch flushed at max size")
	}
}

func TestBatchRecordsFlushesAtMaxWait(t *testing.T) {
	input := make(chan *types.Record, 10)
	output := make(chan *types.RecordBatch, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go BatchRecords(ctx, BatchConfig{
		MaxBatchSize: 1000,
		MaxBatchWait: 20 * time.Millisecond,
		InputQueue:   input,
		OutputQueue:  output,
		AckGenerator: noopAck,
	})

	input <- types.NewRecord()

	select {
	case batch := <-output:
		require.Len(t, batch.Records, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("partial batch not flushed at max wait")
	}
}

func TestBatchRecordsFlushesPartialBatchOnShutdown(t *testing.T) {
	input := make(chan *types.Record, 10)
	output := make(chan *types.RecordBatch, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		BatchRecords(ctx, BatchConfig{
			MaxBatchSize: 1000,
			MaxBatchWait: time.Hour,
			InputQueue:   input,
			OutputQueue:  output,
			AckGenerator: noopAck,
		})
	}()

	input <- types.NewRecord()
	input <- types.NewRecord()
	// Give the batcher a chance to pull both records before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	batch, ok := <-output
	require.True(t, ok)
	require.Len(t, batch.Records, 2)

	_, ok = <-output
	require.False(t, ok, "output queue must be closed after shutdown")
}

func TestBatchRecordsDrainsBufferedInputOnShutdown(t *testing.T) {
	input := make(chan *types.Record, 10)
	output := make(chan *types.RecordBatch, 10)
	for i := 0; i < 5; i++ {
		r := types.NewRecord()
		r.Set("seq", int64(i))
		input <- r
	}

	// Cancel before the batcher runs: everything already buffered on the
	// input queue must still come out the other side.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		BatchRecords(ctx, BatchConfig{
			MaxBatchSize: 2,
			MaxBatchWait: time.Hour,
			InputQueue:   input,
			OutputQueue:  output,
			AckGenerator: noopAck,
		})
	}()
	<-done

	var total int
	for batch := range output {
		total += len(batch.Records)
	}
	require.Equal(t, 5, total)
}

func TestBatchRecordsAckGeneratorSeesLastRecord(t *testing.T) {
	input := make(chan *types.Record, 10)
	output := make(chan *types.RecordBatch, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastSeq any
	go BatchRecords(ctx, BatchConfig{
		MaxBatchSize: 2,
		MaxBatchWait: time.Hour,
		InputQueue:   input,
		OutputQueue:  output,
		AckGenerator: func(r *types.Record) func() {
			lastSeq, _ = r.Get("seq")
			return func() {}
		},
	})

	for i := 0; i < 2; i++ {
		r := types.NewRecord()
		r.Set("seq", int64(i))
		input <- r
	}

	select {
	case <-output:
	case <-time.After(5 * time.Second):
		t.Fatal("no batch flushed")
	}
	require.Equal(t, int64(1), lastSeq)
}
