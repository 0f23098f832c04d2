package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routeflow/routeflow/pipeline/types"
	"github.com/routeflow/routeflow/pkg/logger"
)

// State is the lifecycle state of a running pipeline.
type State int32

const (
	StateLoading State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Edge is one source-to-sink path through the graph, with its own transform
// chain and bounded queue.
type Edge struct {
	Source     string
	Transforms []types.Transformer
	Sink       types.Sink

	// QueueSize bounds the number of batches buffered on this edge.
	QueueSize int

	// MaxRetryDuration caps sink retries per batch.  Zero retries until
	// acknowledged or shutdown.
	MaxRetryDuration time.Duration

	queue chan *types.RecordBatch
}

// Pipeline is one loaded graph instance: opened sources, the edges fanning
// out from them, and the workers driving each edge.
type Pipeline struct {
	Sources  []types.Source
	Edges    []*Edge
	Observer DeliveryObserver

	fanoutWG      sync.WaitGroup
	workerWG      sync.WaitGroup
	cancelWorkers context.CancelFunc
	components    []types.Component
	opened        bool
}

// Open starts the pipeline.  Components open sink-first so every downstream
// stage is ready before its upstream produces.  A source that fails to open
// disables only its own branch.
func (p *Pipeline) Open(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	p.cancelWorkers = cancelWorkers

	opened := map[types.Component]bool{}
	for _, e := range p.Edges {
		if !opened[e.Sink] {
			if err := e.Sink.Open(ctx); err != nil {
				cancelWorkers()
				p.closeComponents()
				return err
			}
			opened[e.Sink] = true
			p.components = append(p.components, e.Sink)
		}
	}
	for _, e := range p.Edges {
		for i := len(e.Transforms) - 1; i >= 0; i-- {
			t := e.Transforms[i]
			if !opened[t] {
				if err := t.Open(ctx); err != nil {
					cancelWorkers()
					p.closeComponents()
					return err
				}
				opened[t] = true
				p.components = append(p.components, t)
			}
		}
	}

	for _, e := range p.Edges {
		size := e.QueueSize
		if size <= 0 {
			size = 1
		}
		e.queue = make(chan *types.RecordBatch, size)

		w := &worker{
			SourceName:       e.Source,
			Input:            e.queue,
			Transforms:       e.Transforms,
			Sink:             e.Sink,
			MaxRetryDuration: e.MaxRetryDuration,
			Observer:         p.Observer,
		}
		p.workerWG.Add(1)
		go func() {
			defer p.workerWG.Done()
			w.Run(workerCtx)
		}()
	}

	var running []types.Source
	for _, src := range p.Sources {
		if err := src.Open(ctx); err != nil {
			logger.Errorf("Disabling source %s: %v", src.Name(), err)
			continue
		}
		running = append(running, src)

		edges := p.edgesFor(src.Name())
		p.fanoutWG.Add(1)
		go func(src types.Source, edges []*Edge) {
			defer p.fanoutWG.Done()
			fanout(src, edges)
		}(src, edges)
	}
	p.Sources = running
	p.opened = true

	return nil
}

func (p *Pipeline) edgesFor(source string) []*Edge {
	var edges []*Edge
	for _, e := range p.Edges {
		if e.Source == source {
			edges = append(edges, e)
		}
	}
	return edges
}

// fanout moves batches from a source queue onto every edge for that source.
// The blocking send onto a full edge queue is the backpressure path: it stops
// this loop, which stops the source's batcher, which stops the source read
// loop.
func fanout(src types.Source, edges []*Edge) {
	for batch := range src.Queue() {
		for i, e := range edges {
			if i == len(edges)-1 {
				e.queue <- batch
				continue
			}
			e.queue <- batch.Copy()
		}
		if len(edges) == 0 {
			batch.Ack()
			types.RecordBatchPool.Put(batch)
		}
	}
}

// Drain stops the sources, flushes every queued batch through transforms and
// sinks, and closes all components.  The timeout bounds the whole sequence.
// When it expires the workers are cancelled, which settles each remaining
// batch as lost and unblocks the upstream fanout and batcher stages, so a
// stuck sink cannot hold Close on a source or the fanout wait forever.
func (p *Pipeline) Drain(timeout time.Duration) {
	if !p.opened {
		return
	}

	timer := time.AfterFunc(timeout, func() {
		logger.Errorf("Drain timeout after %s, abandoning undelivered batches", timeout)
		p.cancelWorkers()
	})
	defer timer.Stop()

	for _, src := range p.Sources {
		if err := src.Close(); err != nil {
			logger.Warnf("Failed to close source %s: %v", src.Name(), err)
		}
	}
	p.fanoutWG.Wait()

	for _, e := range p.Edges {
		close(e.queue)
	}
	p.workerWG.Wait()
	p.cancelWorkers()

	p.closeComponents()
}

func (p *Pipeline) closeComponents() {
	for _, c := range p.components {
		if err := c.Close(); err != nil {
			logger.Warnf("Failed to close pipeline component: %v", err)
		}
	}
}

type RouterOpts struct {
	// DrainTimeout bounds how long Drain waits for in-flight batches.
	DrainTimeout time.Duration

	Observer DeliveryObserver
}

// Router owns the currently running pipeline and swaps in replacements
// produced by configuration reloads.  A replacement is always fully built and
// validated before the running pipeline starts draining.
type Router struct {
	drainTimeout time.Duration
	observer     DeliveryObserver

	state    atomic.Int32
	pipeline *Pipeline
	reloadCh chan *Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewRouter(p *Pipeline, opts RouterOpts) *Router {
	drainTimeout := opts.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = 30 * time.Second
	}
	p.Observer = opts.Observer
	return &Router{
		drainTimeout: drainTimeout,
		observer:     opts.Observer,
		pipeline:     p,
		reloadCh:     make(chan *Pipeline, 1),
		done:         make(chan struct{}),
	}
}

func (r *Router) State() State {
	return State(r.state.Load())
}

func (r *Router) setState(s State) {
	r.state.Store(int32(s))
	logger.Infof("Pipeline state: %s", s)
}

// StateObserver is implemented by observers that also want pipeline
// lifecycle outcomes, not just per-delivery ones.
type StateObserver interface {
	ObservePipelineState(running bool, reason string)
}

func (r *Router) observePipelineState(running bool, reason string) {
	if o, ok := r.observer.(StateObserver); ok {
		o.ObservePipelineState(running, reason)
	}
}

func (r *Router) Open(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.setState(StateLoading)
	if err := r.pipeline.Open(ctx); err != nil {
		r.setState(StateStopped)
		return err
	}
	r.setState(StateRunning)

	go r.run(ctx)
	return nil
}

func (r *Router) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-r.reloadCh:
			r.setState(StateDraining)
			r.pipeline.Drain(r.drainTimeout)

			next.Observer = r.observer
			r.pipeline = next
			r.setState(StateLoading)
			if err := next.Open(ctx); err != nil {
				logger.Errorf("Failed to start reloaded pipeline: %v", err)
				r.setState(StateStopped)
				r.observePipelineState(false, err.Error())
				continue
			}
			r.setState(StateRunning)
			r.observePipelineState(true, "")
		}
	}
}

// Reload hands the router a fully built replacement pipeline.  If a previous
// reload is still pending it is superseded.
func (r *Router) Reload(p *Pipeline) {
	for {
		select {
		case r.reloadCh <- p:
			return
		default:
			select {
			case stale := <-r.reloadCh:
				logger.Warnf("Superseding pending pipeline reload")
				_ = stale
			default:
			}
		}
	}
}

// Close drains the running pipeline and stops the router.
func (r *Router) Close() error {
	r.cancel()
	<-r.done
	r.setState(StateDraining)
	r.pipeline.Drain(r.drainTimeout)
	r.setState(StateStopped)
	return nil
}
