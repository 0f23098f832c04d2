package tail

import (
	"context"
	"fmt"
	"time"

	"github.com/tenebris-tech/tail"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/routeflow/routeflow/metrics"
	"github.com/routeflow/routeflow/pipeline/engine"
	"github.com/routeflow/routeflow/pipeline/types"
	"github.com/routeflow/routeflow/pkg/logger"
)

const (
	FormatDocker    = "docker"
	FormatPlaintext = "plaintext"
)

// Target is one followed log file.
type Target struct {
	Path   string            `toml:"path" comment:"Path of the log file to follow."`
	Format string            `toml:"format" comment:"Line format: docker or plaintext."`
	Fields map[string]string `toml:"fields" comment:"Static fields stamped on every record from this target."`
}

type TailSourceConfig struct {
	Name          string
	StaticTargets []Target
	MaxBatchSize  int
	MaxBatchWait  time.Duration
	QueueSize     int
}

// TailSource follows log files and emits one record per complete line.
// Transient tailer failures are retried with bounded backoff; only
// misconfiguration fails Open.
type TailSource struct {
	name          string
	staticTargets []Target
	maxBatchSize  int
	maxBatchWait  time.Duration
	queueSize     int
	outputQueue   chan *types.RecordBatch

	closeFn context.CancelFunc
	group   *errgroup.Group
}

func NewTailSource(config TailSourceConfig) (*TailSource, error) {
	if len(config.StaticTargets) == 0 {
		return nil, fmt.Errorf("tail source %s: at least one target is required", config.Name)
	}
	for _, target := range config.StaticTargets {
		if target.Path == "" {
			return nil, fmt.Errorf("tail source %s: target path is required", config.Name)
		}
		switch target.Format {
		case FormatDocker, FormatPlaintext, "":
		default:
			return nil, fmt.Errorf("tail source %s: unknown format %q", config.Name, target.Format)
		}
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

	return &TailSource{
		name:          config.Name,
		staticTargets: config.StaticTargets,
		maxBatchSize:  config.MaxBatchSize,
		maxBatchWait:  config.MaxBatchWait,
		queueSize:     config.QueueSize,
		outputQueue:   make(chan *types.RecordBatch, 1),
	}, nil
}

func (s *TailSource) Open(ctx context.Context) error {
	ctx, closeFn := context.WithCancel(ctx)
	s.closeFn = closeFn

	group, ctx := errgroup.WithContext(ctx)
	s.group = group

	batchQueue := make(chan *types.Record, s.queueSize)
	batchConfig := engine.BatchConfig{
		MaxBatchSize: s.maxBatchSize,
		MaxBatchWait: s.maxBatchWait,
		InputQueue:   batchQueue,
		OutputQueue:  s.outputQueue,
		AckGenerator: func(r *types.Record) func() {
			return func() {}
		},
	}
	group.Go(func() error {
		return engine.BatchRecords(ctx, batchConfig)
	})

	for _, target := range s.staticTargets {
		target := target
		group.Go(func() error {
			s.tailTarget(ctx, target, batchQueue)
			return nil
		})
	}

	return nil
}

func (s *TailSource) Close() error {
	s.closeFn()
	s.group.Wait()
	return nil
}

func (s *TailSource) Name() string {
	return s.name
}

func (s *TailSource) Queue() <-chan *types.RecordBatch {
	return s.outputQueue
}

// tailTarget follows a single file until ctx is cancelled.  A tailer that
// cannot be opened or that stops unexpectedly is retried with exponential
// backoff, indefinitely: a missing or rotated file is a transient condition,
// not a reason to kill the branch.
func (s *TailSource) tailTarget(ctx context.Context, target Target, outputQueue chan<- *types.Record) {
	backoff := wait.Backoff{
		Duration: 1 * time.Second,
		Factor:   2.0,
		Jitter:   0.25,
		Steps:    6,
		Cap:      30 * time.Second,
	}

	for {
		tailer, err := tail.TailFile(target.Path, tail.Config{Follow: true, ReOpen: true})
		if err == nil {
			err = s.readLines(ctx, target, tailer, outputQueue)
			tailer.Cleanup()
			tailer.Stop()
			if err == nil {
				return
			}
			// A successful stretch of reads earns a fresh backoff.
			backoff = wait.Backoff{Duration: 1 * time.Second, Factor: 2.0, Jitter: 0.25, Steps: 6, Cap: 30 * time.Second}
		}
		logger.Warnf("Tail of %q interrupted, will retry: %v", target.Path, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Step()):
		}
	}
}

func (s *TailSource) readLines(ctx context.Context, target Target, tailer *tail.Tail, outputQueue chan<- *types.Record) error {
	parser := NewDockerParser()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-tailer.Lines:
			if !ok {
				return fmt.Errorf("readLines: tailer closed the channel for filename %q", tailer.Filename)
			}
			if line.Err != nil {
				logger.Errorf("readLines: tailer error for filename %q: %v", tailer.Filename, line.Err)
				//skip
				continue
			}

			r := types.RecordPool.Get(1).(*types.Record)
			r.Reset()

			var isPartial bool
			var err error
			switch target.Format {
			case FormatDocker:
				isPartial, err = parser.Parse(line.Text, r)
			default:
				err = parsePlaintext(line.Text, r)
			}
			if err != nil {
				logger.Errorf("readLines: parse error for filename %q: %v", tailer.Filename, err)
				types.RecordPool.Put(r)
				//skip
				continue
			}
			if isPartial {
				types.RecordPool.Put(r)
				continue
			}

			r.Set("source", s.name)
			for k, v := range target.Fields {
				r.Set(k, v)
			}
			metrics.RecordsReceived.WithLabelValues(s.name).Inc()

			select {
			case <-ctx.Done():
				types.RecordPool.Put(r)
				return nil
			case outputQueue <- r:
			}
		}
	}
}

func parsePlaintext(line string, r *types.Record) error {
	now := time.Now()
	r.SetIngestTime(now)
	r.Set("timestamp", now.UTC())
	r.Set("message", line)
	return nil
}
