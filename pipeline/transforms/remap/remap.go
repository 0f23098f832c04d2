// Package remap implements the field-remapping transform: a small program of
// field operations compiled at load time and applied per record.
package remap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/routeflow/routeflow/metrics"
	"github.com/routeflow/routeflow/pipeline/types"
	"github.com/routeflow/routeflow/pkg/logger"
)

// Step is one declared operation in a remap program.
type Step struct {
	Op     string `toml:"op" comment:"Operation: extract, coerce, parse_timestamp, require, assert_type."`
	Field  string `toml:"field" comment:"Field the operation applies to."`
	From   string `toml:"from" comment:"Source field for extract."`
	Type   string `toml:"type" comment:"Target type for coerce and assert_type: string, int, float, bool (assert_type also: timestamp, mapping)."`
	Format string `toml:"format" comment:"Timestamp format for parse_timestamp: rfc3339, rfc3339nano, unix, unix_ms, or a Go reference layout."`
}

// Failure is a typed per-record transform failure.  Exactly one failure is
// reported per dropped record: the first operation that fails.
type Failure struct {
	Field  string
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("field %q: %s", f.Field, f.Reason)
}

type opKind int

const (
	opExtract opKind = iota
	opCoerce
	opParseTimestamp
	opRequire
	opAssertType
)

const (
	typeString    = "string"
	typeInt       = "int"
	typeFloat     = "float"
	typeBool      = "bool"
	typeTimestamp = "timestamp"
	typeMapping   = "mapping"
)

type operation struct {
	kind   opKind
	field  string
	from   string
	typ    string
	layout string // resolved Go layout, or "" for unix/unix_ms
	unit   string // "s" or "ms" for numeric timestamp formats
}

// Program is a compiled remap program.  Apply is a pure function of the
// record and the program; a Program is safe for concurrent use.
type Program struct {
	ops []operation
}

// Compile validates every step and resolves its arguments.  Malformed
// programs are rejected here, before any data flows.
func Compile(steps []Step) (*Program, error) {
	ops := make([]operation, 0, len(steps))
	for i, s := range steps {
		if s.Field == "" {
			return nil, fmt.Errorf("step[%d]: field must be set", i)
		}

		op := operation{field: s.Field}
		switch s.Op {
		case "extract":
			if s.From == "" {
				return nil, fmt.Errorf("step[%d]: extract requires from", i)
			}
			op.kind = opExtract
			op.from = s.From

		case "coerce":
			switch s.Type {
			case typeString, typeInt, typeFloat, typeBool:
			case typeTimestamp:
				return nil, fmt.Errorf("step[%d]: coerce to timestamp is not supported, use parse_timestamp", i)
			default:
				return nil, fmt.Errorf("step[%d]: coerce to unknown type %q", i, s.Type)
			}
			op.kind = opCoerce
			op.typ = s.Type

		case "parse_timestamp":
			layout, unit, err := resolveTimestampFormat(s.Format)
			if err != nil {
				return nil, fmt.Errorf("step[%d]: %w", i, err)
			}
			op.kind = opParseTimestamp
			op.layout = layout
			op.unit = unit

		case "require":
			op.kind = opRequire

		case "assert_type":
			switch s.Type {
			case typeString, typeInt, typeFloat, typeBool, typeTimestamp, typeMapping:
			default:
				return nil, fmt.Errorf("step[%d]: assert_type of unknown type %q", i, s.Type)
			}
			op.kind = opAssertType
			op.typ = s.Type

		default:
			return nil, fmt.Errorf("step[%d]: unknown op %q", i, s.Op)
		}
		ops = append(ops, op)
	}
	return &Program{ops: ops}, nil
}

func resolveTimestampFormat(format string) (layout string, unit string, err error) {
	switch format {
	case "":
		return "", "", fmt.Errorf("parse_timestamp requires format")
	case "rfc3339":
		return time.RFC3339, "", nil
	case "rfc3339nano":
		return time.RFC3339Nano, "", nil
	case "unix":
		return "", "s", nil
	case "unix_ms":
		return "", "ms", nil
	}
	// Treat anything else as a Go reference layout and prove it round-trips.
	ref := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if _, perr := time.Parse(format, ref.Format(format)); perr != nil {
		return "", "", fmt.Errorf("invalid timestamp layout %q: %w", format, perr)
	}
	return format, "", nil
}

// Apply runs the program against the record.  The first failing operation
// short-circuits the rest and is the single reported cause.
func (p *Program) Apply(r *types.Record) *Failure {
	for i := range p.ops {
		op := &p.ops[i]
		var f *Failure
		switch op.kind {
		case opExtract:
			f = applyExtract(r, op)
		case opCoerce:
			f = applyCoerce(r, op)
		case opParseTimestamp:
			f = applyParseTimestamp(r, op)
		case opRequire:
			f = applyRequire(r, op)
		case opAssertType:
			f = applyAssertType(r, op)
		}
		if f != nil {
			return f
		}
	}
	return nil
}

func applyExtract(r *types.Record, op *operation) *Failure {
	v, ok := r.Get(op.from)
	if !ok || v == nil {
		return &Failure{Field: op.from, Reason: "field is absent"}
	}
	// Last write wins when a program writes one field twice.
	r.Set(op.field, v)
	if op.from != op.field {
		r.Delete(op.from)
	}
	return nil
}

func applyCoerce(r *types.Record, op *operation) *Failure {
	v, ok := r.Get(op.field)
	if !ok || v == nil {
		return &Failure{Field: op.field, Reason: "field is absent"}
	}

	coerced, err := coerceValue(v, op.typ)
	if err != nil {
		return &Failure{Field: op.field, Reason: err.Error()}
	}
	r.Set(op.field, coerced)
	return nil
}

func coerceValue(v any, target string) (any, error) {
	switch target {
	case typeString:
		switch v := v.(type) {
		case string:
			return v, nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		case time.Time:
			return v.Format(time.RFC3339Nano), nil
		}
	case typeInt:
		switch v := v.(type) {
		case int64:
			return v, nil
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("cannot coerce %v to int without truncation", v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to int", v)
			}
			return n, nil
		}
	case typeFloat:
		switch v := v.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to float", v)
			}
			return n, nil
		}
	case typeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to bool", v)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %s to %s", typeName(v), target)
}

func applyParseTimestamp(r *types.Record, op *operation) *Failure {
	v, ok := r.Get(op.field)
	if !ok || v == nil {
		return &Failure{Field: op.field, Reason: "field is absent"}
	}

	// Already parsed upstream.
	if _, isTime := v.(time.Time); isTime {
		return nil
	}

	if op.unit != "" {
		var n int64
		switch v := v.(type) {
		case int64:
			n = v
		case float64:
			n = int64(v)
		case string:
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return &Failure{Field: op.field, Reason: fmt.Sprintf("cannot parse %q as unix timestamp", v)}
			}
			n = parsed
		default:
			return &Failure{Field: op.field, Reason: fmt.Sprintf("expected numeric timestamp, got %s", typeName(v))}
		}
		if op.unit == "ms" {
			r.Set(op.field, time.UnixMilli(n).UTC())
		} else {
			r.Set(op.field, time.Unix(n, 0).UTC())
		}
		return nil
	}

	s, isString := v.(string)
	if !isString {
		return &Failure{Field: op.field, Reason: fmt.Sprintf("expected string timestamp, got %s", typeName(v))}
	}
	ts, err := time.Parse(op.layout, s)
	if err != nil {
		return &Failure{Field: op.field, Reason: fmt.Sprintf("cannot parse %q with layout %q", s, op.layout)}
	}
	r.Set(op.field, ts)
	return nil
}

func applyRequire(r *types.Record, op *operation) *Failure {
	v, ok := r.Get(op.field)
	if !ok || v == nil {
		return &Failure{Field: op.field, Reason: "required field is absent"}
	}
	return nil
}

func applyAssertType(r *types.Record, op *operation) *Failure {
	v, ok := r.Get(op.field)
	if !ok || v == nil {
		return &Failure{Field: op.field, Reason: "field is absent"}
	}
	if got := typeName(v); got != op.typ {
		return &Failure{Field: op.field, Reason: fmt.Sprintf("expected %s, got %s", op.typ, got)}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return typeString
	case int64:
		return typeInt
	case float64:
		return typeFloat
	case bool:
		return typeBool
	case time.Time:
		return typeTimestamp
	case map[string]any:
		return typeMapping
	case nil:
		return "absent"
	}
	return fmt.Sprintf("%T", v)
}

// Transform applies a compiled program to every record in a batch.  Records
// that fail are dropped individually; the batch and the pipeline continue.
type Transform struct {
	name    string
	source  string
	program *Program
}

// NewTransform compiles the program for one pipeline edge.  source labels
// diagnostics and metrics with the edge's origin.
func NewTransform(name, source string, steps []Step) (*Transform, error) {
	program, err := Compile(steps)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", name, err)
	}
	return &Transform{name: name, source: source, program: program}, nil
}

func (t *Transform) Open(ctx context.Context) error {
	return nil
}

func (t *Transform) Transform(ctx context.Context, batch *types.RecordBatch) (*types.RecordBatch, error) {
	kept := batch.Records[:0]
	for _, r := range batch.Records {
		if f := t.program.Apply(r); f != nil {
			logger.Warnf("Dropping record source=%s transform=%s field=%s: %s", t.source, t.name, f.Field, f.Reason)
			metrics.TransformFailures.WithLabelValues(t.source, t.name).Inc()
			types.RecordPool.Put(r)
			continue
		}
		kept = append(kept, r)
	}
	batch.Records = kept
	return batch, nil
}

func (t *Transform) Close() error {
	return nil
}

func (t *Transform) Name() string {
	return t.name
}
