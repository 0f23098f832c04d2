// Package push implements a generic HTTP push listener source.  Clients POST
// newline-delimited JSON objects; each object becomes one record.
package push

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/routeflow/routeflow/metrics"
	"github.com/routeflow/routeflow/pipeline/engine"
	"github.com/routeflow/routeflow/pipeline/types"
	rhttp "github.com/routeflow/routeflow/pkg/http"
	"github.com/routeflow/routeflow/pkg/logger"
)

// Maximum accepted line length.  Longer lines are rejected with the request.
const maxLineBytes = 1 << 20

type PushSourceConfig struct {
	Name         string
	ListenAddr   string
	Path         string
	MaxBatchSize int
	MaxBatchWait time.Duration
	QueueSize    int
}

// PushSource runs its own listener so reloads can rebind paths and ports
// without touching the shared admin server.
type PushSource struct {
	name         string
	listenAddr   string
	path         string
	maxBatchSize int
	maxBatchWait time.Duration

	internalQueue chan *types.Record
	outputQueue   chan *types.RecordBatch

	srv     *http.Server
	closeFn context.CancelFunc
	done    chan struct{}
}

func NewPushSource(config PushSourceConfig) (*PushSource, error) {
	if config.ListenAddr == "" {
		return nil, fmt.Errorf("push source %s: listen-addr is required", config.Name)
	}
	if config.Path == "" {
		config.Path = "/ingest"
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1000
	}
	if config.MaxBatchWait <= 0 {
		config.MaxBatchWait = time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 512
	}

	return &PushSource{
		name:          config.Name,
		listenAddr:    config.ListenAddr,
		path:          config.Path,
		maxBatchSize:  config.MaxBatchSize,
		maxBatchWait:  config.MaxBatchWait,
		internalQueue: make(chan *types.Record, config.QueueSize),
		outputQueue:   make(chan *types.RecordBatch, 1),
		done:          make(chan struct{}),
	}, nil
}

func (s *PushSource) Open(ctx context.Context) error {
	ctx, closeFn := context.WithCancel(ctx)
	s.closeFn = closeFn

	batchConfig := engine.BatchConfig{
		MaxBatchSize: s.maxBatchSize,
		MaxBatchWait: s.maxBatchWait,
		InputQueue:   s.internalQueue,
		OutputQueue:  s.outputQueue,
		AckGenerator: func(r *types.Record) func() {
			return func() {}
		},
	}
	go func() {
		defer close(s.done)
		engine.BatchRecords(ctx, batchConfig)
	}()

	mux := http.NewServeMux()
	mux.Handle(s.path, metrics.HandlerFuncRecorder("push", s.handle))
	s.srv = &http.Server{Addr: s.listenAddr, Handler: mux}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Push source %s listener failed: %v", s.name, err)
		}
	}()
	return nil
}

func (s *PushSource) Close() error {
	if err := s.srv.Shutdown(context.Background()); err != nil {
		logger.Warnf("Failed to shut down push source %s listener: %v", s.name, err)
	}
	s.closeFn()
	<-s.done
	return nil
}

func (s *PushSource) Name() string {
	return s.name
}

func (s *PushSource) Queue() <-chan *types.RecordBatch {
	return s.outputQueue
}

func (s *PushSource) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	rhttp.MaybeCloseConnection(w, r)

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		fields := map[string]any{}
		if err := json.Unmarshal(line, &fields); err != nil {
			http.Error(w, fmt.Sprintf("malformed record: %v", err), http.StatusBadRequest)
			return
		}

		rec := types.RecordPool.Get(1).(*types.Record)
		rec.Reset()
		rec.SetIngestTime(time.Now())
		for k, v := range fields {
			rec.Set(k, v)
		}
		rec.Set("source", s.name)

		// The outbound queue is the flow-control surface: when it is full the
		// client is told to back off instead of buffering here.
		select {
		case s.internalQueue <- rec:
			metrics.RecordsReceived.WithLabelValues(s.name).Inc()
		default:
			types.RecordPool.Put(rec)
			http.Error(w, "queue full", http.StatusTooManyRequests)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		http.Error(w, fmt.Sprintf("read error: %v", err), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
