package remap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow/pipeline/types"
)

func TestCompileRejectsMalformedPrograms(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"unknown op", []Step{{Op: "rename", Field: "a"}}},
		{"missing field", []Step{{Op: "require"}}},
		{"extract without from", []Step{{Op: "extract", Field: "a"}}},
		{"coerce unknown type", []Step{{Op: "coerce", Field: "a", Type: "decimal"}}},
		{"coerce to timestamp", []Step{{Op: "coerce", Field: "a", Type: "timestamp"}}},
		{"parse_timestamp without format", []Step{{Op: "parse_timestamp", Field: "a"}}},
		{"parse_timestamp bad layout", []Step{{Op: "parse_timestamp", Field: "a", Format: "not a layout %Y"}}},
		{"assert_type unknown type", []Step{{Op: "assert_type", Field: "a", Type: "decimal"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.steps)
			require.Error(t, err)
		})
	}
}

func TestCompileAcceptsGoLayouts(t *testing.T) {
	_, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "2006-01-02 15:04:05"}})
	require.NoError(t, err)
}

func TestApplyExtract(t *testing.T) {
	p, err := Compile([]Step{{Op: "extract", Field: "container", From: "container_name"}})
	require.NoError(t, err)

	r := types.NewRecord()
	r.Set("container_name", "web")

	require.Nil(t, p.Apply(r))
	v, ok := r.Get("container")
	require.True(t, ok)
	require.Equal(t, "web", v)
	_, ok = r.Get("container_name")
	require.False(t, ok)
}

func TestApplyExtractAbsentSource(t *testing.T) {
	p, err := Compile([]Step{{Op: "extract", Field: "container", From: "container_name"}})
	require.NoError(t, err)

	f := p.Apply(types.NewRecord())
	require.NotNil(t, f)
	require.Equal(t, "container_name", f.Field)
}

func TestApplyCoerce(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		in     any
		want   any
		failed bool
	}{
		{"string from int", "string", int64(42), "42", false},
		{"string from bool", "string", true, "true", false},
		{"int from string", "int", "42", int64(42), false},
		{"int from whole float", "int", float64(42), int64(42), false},
		{"int from fractional float", "int", float64(42.5), nil, true},
		{"int from garbage", "int", "forty two", nil, true},
		{"float from string", "float", "4.5", float64(4.5), false},
		{"float from int", "float", int64(4), float64(4), false},
		{"bool from string", "bool", "true", true, false},
		{"bool from int", "bool", int64(1), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile([]Step{{Op: "coerce", Field: "v", Type: tt.typ}})
			require.NoError(t, err)

			r := types.NewRecord()
			r.Set("v", tt.in)
			f := p.Apply(r)
			if tt.failed {
				require.NotNil(t, f)
				require.Equal(t, "v", f.Field)
				return
			}
			require.Nil(t, f)
			v, _ := r.Get("v")
			require.Equal(t, tt.want, v)
		})
	}
}

func TestApplyParseTimestamp(t *testing.T) {
	t.Run("rfc3339nano", func(t *testing.T) {
		p, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "rfc3339nano"}})
		require.NoError(t, err)

		r := types.NewRecord()
		r.Set("ts", "2024-01-15T10:30:00.123456789Z")
		require.Nil(t, p.Apply(r))
		v, _ := r.Get("ts")
		ts, ok := v.(time.Time)
		require.True(t, ok)
		require.Equal(t, 123456789, ts.Nanosecond())
	})

	t.Run("unix", func(t *testing.T) {
		p, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "unix"}})
		require.NoError(t, err)

		r := types.NewRecord()
		r.Set("ts", int64(1705314600))
		require.Nil(t, p.Apply(r))
		v, _ := r.Get("ts")
		require.Equal(t, time.Unix(1705314600, 0).UTC(), v)
	})

	t.Run("unix_ms from string", func(t *testing.T) {
		p, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "unix_ms"}})
		require.NoError(t, err)

		r := types.NewRecord()
		r.Set("ts", "1705314600123")
		require.Nil(t, p.Apply(r))
		v, _ := r.Get("ts")
		require.Equal(t, time.UnixMilli(1705314600123).UTC(), v)
	})

	t.Run("already parsed", func(t *testing.T) {
		p, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "rfc3339"}})
		require.NoError(t, err)

		now := time.Now()
		r := types.NewRecord()
		r.Set("ts", now)
		require.Nil(t, p.Apply(r))
		v, _ := r.Get("ts")
		require.Equal(t, now, v)
	})

	t.Run("unparseable string", func(t *testing.T) {
		p, err := Compile([]Step{{Op: "parse_timestamp", Field: "ts", Format: "rfc3339"}})
		require.NoError(t, err)

		r := types.NewRecord()
		r.Set("ts", "yesterday")
		f := p.Apply(r)
		require.NotNil(t, f)
		require.Equal(t, "ts", f.Field)
	})
}

func TestApplyShortCircuitsOnFirstFailure(t *testing.T) {
	p, err := Compile([]Step{
		{Op: "require", Field: "message"},
		{Op: "coerce", Field: "count", Type: "int"},
	})
	require.NoError(t, err)

	r := types.NewRecord()
	r.Set("count", "not a number")

	f := p.Apply(r)
	require.NotNil(t, f)
	require.Equal(t, "message", f.Field)

	// The later coerce never ran, the field is untouched.
	v, _ := r.Get("count")
	require.Equal(t, "not a number", v)
}

func TestApplyIsDeterministic(t *testing.T) {
	p, err := Compile([]Step{
		{Op: "extract", Field: "container", From: "container_name"},
		{Op: "coerce", Field: "status", Type: "int"},
	})
	require.NoError(t, err)

	mk := func() *types.Record {
		r := types.NewRecord()
		r.Set("container_name", "web")
		r.Set("status", "200")
		return r
	}

	a, b := mk(), mk()
	require.Nil(t, p.Apply(a))
	require.Nil(t, p.Apply(b))
	require.Equal(t, a.Fields(), b.Fields())
}

func TestRequireTreatsNilAsAbsent(t *testing.T) {
	p, err := Compile([]Step{{Op: "require", Field: "message"}})
	require.NoError(t, err)

	r := types.NewRecord()
	r.Set("message", nil)
	f := p.Apply(r)
	require.NotNil(t, f)
	require.Equal(t, "message", f.Field)
	require.Equal(t, "required field is absent", f.Reason)
}

func TestAssertType(t *testing.T) {
	p, err := Compile([]Step{{Op: "assert_type", Field: "message", Type: "string"}})
	require.NoError(t, err)

	r := types.NewRecord()
	r.Set("message", "hello")
	require.Nil(t, p.Apply(r))

	r = types.NewRecord()
	r.Set("message", int64(5))
	f := p.Apply(r)
	require.NotNil(t, f)
	require.Equal(t, "expected string, got int", f.Reason)
}

func TestTransformDropsFailedRecordsKeepsRest(t *testing.T) {
	tr, err := NewTransform("parse", "docker", []Step{
		{Op: "require", Field: "message"},
	})
	require.NoError(t, err)

	good := types.NewRecord()
	good.Set("message", "hello")
	bad := types.NewRecord()
	bad.Set("stream", "stdout")

	batch := &types.RecordBatch{Records: []*types.Record{good, bad}}
	out, err := tr.Transform(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	v, _ := out.Records[0].Get("message")
	require.Equal(t, "hello", v)
}

func TestLastWriteWins(t *testing.T) {
	p, err := Compile([]Step{
		{Op: "extract", Field: "out", From: "a"},
		{Op: "extract", Field: "out", From: "b"},
	})
	require.NoError(t, err)

	r := types.NewRecord()
	r.Set("a", "first")
	r.Set("b", "second")
	require.Nil(t, p.Apply(r))
	v, _ := r.Get("out")
	require.Equal(t, "second", v)
}
