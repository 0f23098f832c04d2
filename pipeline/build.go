// Package pipeline assembles a runnable engine.Pipeline from a validated
// configuration.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/routeflow/routeflow/config"
	"github.com/routeflow/routeflow/pipeline/engine"
	"github.com/routeflow/routeflow/pipeline/graph"
	"github.com/routeflow/routeflow/pipeline/sinks"
	"github.com/routeflow/routeflow/pipeline/sources"
	"github.com/routeflow/routeflow/pipeline/transforms"
	"github.com/routeflow/routeflow/pipeline/types"
)

// Build constructs every adapter the resolved graph requires.  Sinks are
// shared across the paths that reference them, sources are shared across
// their edges; transform instances are per edge so that failure metrics
// carry the originating source.  Nothing is opened here, the caller hands
// the pipeline to an engine.Router.
func Build(cfg *config.Config) (*engine.Pipeline, error) {
	g, err := graph.Build(cfg)
	if err != nil {
		return nil, err
	}
	if len(g.Paths) == 0 {
		return nil, fmt.Errorf("configuration routes no source to any sink")
	}

	sourceNames := map[string]bool{}
	for _, p := range g.Paths {
		sourceNames[p.Source] = true
	}

	var srcs []types.Source
	for _, name := range sortedKeys(sourceNames) {
		sc := cfg.Sources[name]
		src, err := sources.NewSource(sc.Type, sources.Settings{
			Name:         name,
			MaxBatchSize: sc.MaxBatchSize,
			MaxBatchWait: time.Duration(sc.MaxBatchWaitSeconds) * time.Second,
			QueueSize:    sc.QueueSize,
			Targets:      sc.Target,
			ListenAddr:   sc.ListenAddr,
			Path:         sc.Path,
		})
		if err != nil {
			return nil, fmt.Errorf("sources.%s: %w", name, err)
		}
		srcs = append(srcs, src)
	}

	sinkInstances := map[string]types.Sink{}
	var edges []*engine.Edge
	for _, p := range g.Paths {
		sc := cfg.Sinks[p.Sink]
		sink, ok := sinkInstances[p.Sink]
		if !ok {
			sink, err = sinks.NewSink(sc.Type, sinks.Settings{
				Name:               p.Sink,
				URI:                sc.URI,
				Codec:              sc.Encoding.Codec,
				Compression:        sc.Compression,
				Headers:            sc.Request.Headers,
				InsecureSkipVerify: sc.InsecureSkipVerify,
				Timeout:            time.Duration(sc.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return nil, fmt.Errorf("sinks.%s: %w", p.Sink, err)
			}
			sinkInstances[p.Sink] = sink
		}

		var chain []types.Transformer
		for _, tname := range p.Transforms {
			tc := cfg.Transforms[tname]
			t, err := transforms.NewTransform(tc.Type, tname, p.Source, transforms.Settings{
				Steps:  tc.Step,
				Fields: tc.Fields,
			})
			if err != nil {
				return nil, fmt.Errorf("transforms.%s: %w", tname, err)
			}
			chain = append(chain, t)
		}

		edges = append(edges, &engine.Edge{
			Source:           p.Source,
			Transforms:       chain,
			Sink:             sink,
			QueueSize:        sc.QueueSize,
			MaxRetryDuration: time.Duration(sc.MaxRetrySeconds) * time.Second,
		})
	}

	return &engine.Pipeline{Sources: srcs, Edges: edges}, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
