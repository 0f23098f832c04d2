// Package graph resolves the configured topology into delivery paths.  A
// path is one (source, transform chain, sink) triple; a sink whose inputs
// reach three sources through two transforms yields three paths sharing the
// sink instance downstream.
package graph

import (
	"fmt"
	"sort"

	"github.com/routeflow/routeflow/config"
	"github.com/routeflow/routeflow/pkg/logger"
)

type nodeKind int

const (
	kindSource nodeKind = iota
	kindTransform
	kindSink
)

func (k nodeKind) String() string {
	switch k {
	case kindSource:
		return "source"
	case kindTransform:
		return "transform"
	default:
		return "sink"
	}
}

// Path is a fully resolved route from one source to one sink.  Transforms
// are ordered upstream to downstream.
type Path struct {
	Source     string
	Transforms []string
	Sink       string
}

type Graph struct {
	Paths []Path
}

// Build resolves cfg into paths, rejecting dangling references and cycles.
// Nodes that feed nothing are permitted but logged; their records never
// reach a sink.
func Build(cfg *config.Config) (*Graph, error) {
	kinds := map[string]nodeKind{}
	for name := range cfg.Sources {
		kinds[name] = kindSource
	}
	for name := range cfg.Transforms {
		kinds[name] = kindTransform
	}
	for name := range cfg.Sinks {
		kinds[name] = kindSink
	}

	for name, t := range cfg.Transforms {
		for _, input := range t.Inputs {
			kind, ok := kinds[input]
			if !ok {
				return nil, fmt.Errorf("transforms.%s: input %q is not declared", name, input)
			}
			if kind == kindSink {
				return nil, fmt.Errorf("transforms.%s: input %q is a sink", name, input)
			}
		}
	}
	for name, s := range cfg.Sinks {
		for _, input := range s.Inputs {
			kind, ok := kinds[input]
			if !ok {
				return nil, fmt.Errorf("sinks.%s: input %q is not declared", name, input)
			}
			if kind == kindSink {
				return nil, fmt.Errorf("sinks.%s: input %q is a sink", name, input)
			}
		}
	}

	if err := checkAcyclic(cfg); err != nil {
		return nil, err
	}

	g := &Graph{}
	referenced := map[string]bool{}
	for _, sink := range sortedKeys(cfg.Sinks) {
		for _, input := range cfg.Sinks[sink].Inputs {
			for _, p := range expand(cfg, input, nil) {
				p.Sink = sink
				g.Paths = append(g.Paths, p)
				referenced[p.Source] = true
				for _, t := range p.Transforms {
					referenced[t] = true
				}
			}
		}
	}

	for _, name := range sortedKeys(cfg.Sources) {
		if !referenced[name] {
			logger.Warnf("Source %s feeds no sink, its records will be discarded", name)
		}
	}
	for _, name := range sortedKeys(cfg.Transforms) {
		if !referenced[name] {
			logger.Warnf("Transform %s feeds no sink, it will not run", name)
		}
	}
	return g, nil
}

// expand walks upstream from node, returning one path per reachable source.
// chain holds the transforms crossed so far, downstream first.
func expand(cfg *config.Config, node string, chain []string) []Path {
	if _, ok := cfg.Sources[node]; ok {
		transforms := make([]string, len(chain))
		for i, t := range chain {
			transforms[len(chain)-1-i] = t
		}
		return []Path{{Source: node, Transforms: transforms}}
	}
	t := cfg.Transforms[node]
	var paths []Path
	for _, input := range t.Inputs {
		paths = append(paths, expand(cfg, input, append(chain, node))...)
	}
	return paths
}

func checkAcyclic(cfg *config.Config) error {
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}

	var visit func(name string) error
	visit = func(name string) error {
		t, ok := cfg.Transforms[name]
		if !ok {
			return nil
		}
		switch state[name] {
		case visiting:
			return fmt.Errorf("transforms.%s: transform cycle detected", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, input := range t.Inputs {
			if err := visit(input); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range sortedKeys(cfg.Transforms) {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
