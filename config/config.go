// Package config parses and validates the pipeline configuration document.
// A configuration is rejected in its entirety on any error: unknown keys,
// missing required keys, bad references and unresolved secrets are all
// load-time fatal, never partially applied.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/routeflow/routeflow/pipeline/sinks"
	"github.com/routeflow/routeflow/pipeline/sources"
	"github.com/routeflow/routeflow/pipeline/sources/tail"
	"github.com/routeflow/routeflow/pipeline/transforms"
	"github.com/routeflow/routeflow/pipeline/transforms/remap"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var DefaultConfig = Config{
	ListenAddr:          ":8080",
	DrainTimeoutSeconds: 30,
	Sources: map[string]*Source{
		"docker": {
			Type:                SourceTypeTail,
			MaxBatchSize:        1000,
			MaxBatchWaitSeconds: 1,
			QueueSize:           512,
			Target: []tail.Target{
				{
					Path:   "/var/lib/docker/containers/web/web-json.log",
					Format: tail.FormatDocker,
					Fields: map[string]string{"container_name": "web"},
				},
			},
		},
	},
	Transforms: map[string]*Transform{
		"parse": {
			Type:   TransformTypeRemap,
			Inputs: []string{"docker"},
			Step: []remap.Step{
				{Op: "extract", Field: "container", From: "container_name"},
				{Op: "parse_timestamp", Field: "timestamp", Format: "rfc3339nano"},
				{Op: "require", Field: "message"},
				{Op: "assert_type", Field: "message", Type: "string"},
			},
		},
	},
	Sinks: map[string]*Sink{
		"console": {
			Type:   SinkTypeConsole,
			Inputs: []string{"parse"},
		},
		"ingest": {
			Type:            SinkTypeHTTP,
			Inputs:          []string{"parse"},
			URI:             "http://ingest:4000/api/logs?api_key=${INGEST_API_KEY}",
			Compression:     "gzip",
			Encoding:        Encoding{Codec: "json"},
			QueueSize:       8,
			MaxRetrySeconds: 0,
		},
	},
}

// Type names re-exported so config consumers do not reach into the adapter
// registries for string constants.
const (
	SourceTypeTail     = sources.SourceTypeTail
	SourceTypePush     = sources.SourceTypePush
	TransformTypeRemap = transforms.TransformTypeRemap
	SinkTypeConsole    = sinks.SinkTypeConsole
	SinkTypeHTTP       = sinks.SinkTypeHTTP
)

type Config struct {
	ListenAddr          string `toml:"listen-addr" comment:"Address for the health and metrics endpoints."`
	DrainTimeoutSeconds int    `toml:"drain-timeout-seconds" comment:"Max seconds to flush in-flight records at shutdown or reload."`

	Sources    map[string]*Source    `toml:"sources" comment:"Named source adapters producing records."`
	Transforms map[string]*Transform `toml:"transforms" comment:"Named transform programs applied between sources and sinks."`
	Sinks      map[string]*Sink      `toml:"sinks" comment:"Named sink adapters delivering records."`
}

type Source struct {
	Type                string `toml:"type" comment:"Source type: tail or push."`
	MaxBatchSize        int    `toml:"max-batch-size" comment:"Maximum records per batch."`
	MaxBatchWaitSeconds int    `toml:"max-batch-wait-seconds" comment:"Maximum seconds a partial batch waits before flushing."`
	QueueSize           int    `toml:"queue-size" comment:"Bound of the source's outbound record queue."`

	Target []tail.Target `toml:"target" comment:"Followed files (tail sources)."`

	ListenAddr string `toml:"listen-addr" comment:"Listen address (push sources)."`
	Path       string `toml:"path" comment:"HTTP path accepting NDJSON posts (push sources)."`
}

type Transform struct {
	Type   string   `toml:"type" comment:"Transform type: remap or add_fields."`
	Inputs []string `toml:"inputs" comment:"Upstream node names feeding this transform."`

	Step []remap.Step `toml:"step" comment:"Remap program steps, executed in order."`

	Fields map[string]string `toml:"fields" comment:"Static fields stamped by add_fields."`
}

type Sink struct {
	Type   string   `toml:"type" comment:"Sink type: console or http."`
	Inputs []string `toml:"inputs" comment:"Upstream node names feeding this sink."`

	QueueSize       int `toml:"queue-size" comment:"Bound of the sink's edge queue, in batches."`
	MaxRetrySeconds int `toml:"max-retry-seconds" comment:"Cap on retrying one batch. 0 retries until acknowledged or shutdown."`

	URI                string   `toml:"uri" comment:"Ingestion endpoint (http sinks)."`
	Encoding           Encoding `toml:"encoding" comment:"Payload encoding (http sinks)."`
	Compression        string   `toml:"compression" comment:"Payload compression: none or gzip (http sinks)."`
	Request            Request  `toml:"request" comment:"Request options (http sinks)."`
	InsecureSkipVerify bool     `toml:"insecure-skip-verify" comment:"Skip TLS verification (http sinks)."`
	TimeoutSeconds     int      `toml:"timeout-seconds" comment:"Per-request timeout (http sinks)."`
}

type Encoding struct {
	Codec string `toml:"codec" comment:"Codec: json."`
}

type Request struct {
	Headers map[string]string `toml:"headers" comment:"Headers added to every request."`
}

// Load reads, substitutes and validates the configuration document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse parses and validates a configuration document.
func Parse(raw []byte) (*Config, error) {
	substituted, err := substituteEnv(raw)
	if err != nil {
		return nil, err
	}

	var cfg Config
	d := toml.NewDecoder(strings.NewReader(string(substituted)))
	d.DisallowUnknownFields()
	if err := d.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("parse config at row %d column %d: %w", row, col, err)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("unknown configuration keys:\n%s", serr.String())
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// substituteEnv resolves ${VAR} references.  An unresolved reference is
// fatal: a half-configured credential must never reach a running pipeline.
func substituteEnv(raw []byte) ([]byte, error) {
	var missing []string
	out := envVarRe.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := string(envVarRe.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return []byte(v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved environment references: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen-addr must be set")
	}
	if c.DrainTimeoutSeconds < 0 {
		return errors.New("drain-timeout-seconds must not be negative")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source must be declared")
	}
	if len(c.Sinks) == 0 {
		return errors.New("at least one sink must be declared")
	}

	seen := map[string]string{}
	for name := range c.Sources {
		seen[name] = "source"
	}
	for name := range c.Transforms {
		if kind, ok := seen[name]; ok {
			return fmt.Errorf("transforms.%s: name already declared as a %s", name, kind)
		}
		seen[name] = "transform"
	}
	for name := range c.Sinks {
		if kind, ok := seen[name]; ok {
			return fmt.Errorf("sinks.%s: name already declared as a %s", name, kind)
		}
	}

	for name, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sources.%s: %w", name, err)
		}
	}
	for name, t := range c.Transforms {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transforms.%s: %w", name, err)
		}
	}
	for name, s := range c.Sinks {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sinks.%s: %w", name, err)
		}
	}
	return nil
}

func (s *Source) Validate() error {
	if !sources.IsValidSourceType(s.Type) {
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	switch s.Type {
	case SourceTypeTail:
		if len(s.Target) == 0 {
			return errors.New("tail source requires at least one target")
		}
		for i, t := range s.Target {
			if t.Path == "" {
				return fmt.Errorf("target[%d]: path must be set", i)
			}
			switch t.Format {
			case tail.FormatDocker, tail.FormatPlaintext, "":
			default:
				return fmt.Errorf("target[%d]: unknown format %q", i, t.Format)
			}
		}
	case SourceTypePush:
		if s.ListenAddr == "" {
			return errors.New("push source requires listen-addr")
		}
	}
	return nil
}

func (t *Transform) Validate() error {
	if !transforms.IsValidTransformType(t.Type) {
		return fmt.Errorf("unknown transform type %q", t.Type)
	}
	if len(t.Inputs) == 0 {
		return errors.New("inputs must not be empty")
	}
	switch t.Type {
	case TransformTypeRemap:
		if len(t.Step) == 0 {
			return errors.New("remap transform requires at least one step")
		}
		// Compile now so a malformed program is rejected before any data flows.
		if _, err := remap.Compile(t.Step); err != nil {
			return err
		}
	case transforms.TransformTypeAddFields:
		if len(t.Fields) == 0 {
			return errors.New("add_fields transform requires fields")
		}
	}
	return nil
}

func (s *Sink) Validate() error {
	if !sinks.IsValidSinkType(s.Type) {
		return fmt.Errorf("unknown sink type %q", s.Type)
	}
	if len(s.Inputs) == 0 {
		return errors.New("inputs must not be empty")
	}
	if s.Type == SinkTypeHTTP {
		if s.URI == "" {
			return errors.New("http sink requires uri")
		}
		if s.Encoding.Codec == "" {
			return errors.New("http sink requires encoding.codec")
		}
		if s.Encoding.Codec != sinks.CodecJSON {
			return fmt.Errorf("unknown encoding.codec %q", s.Encoding.Codec)
		}
		switch s.Compression {
		case "", sinks.CompressionNone, sinks.CompressionGzip:
		default:
			return fmt.Errorf("unknown compression %q", s.Compression)
		}
	}
	return nil
}
