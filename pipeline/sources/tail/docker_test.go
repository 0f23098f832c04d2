package tail

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow/pipeline/types"
)

func TestDockerParserCompleteLine(t *testing.T) {
	p := NewDockerParser()
	r := types.NewRecord()

	partial, err := p.Parse(`{"log":"hello world\n","stream":"stdout","time":"2024-01-15T10:30:00.123456789Z"}`, r)
	require.NoError(t, err)
	require.False(t, partial)

	v, _ := r.Get("message")
	require.Equal(t, "hello world", v)
	v, _ = r.Get("stream")
	require.Equal(t, "stdout", v)
	v, _ = r.Get("timestamp")
	require.Equal(t, "2024-01-15T10:30:00.123456789Z", v)
	require.False(t, r.IngestTime().IsZero())
}

func TestDockerParserReassemblesSplitLines(t *testing.T) {
	p := NewDockerParser()

	r := types.NewRecord()
	partial, err := p.Parse(`{"log":"part one ","stream":"stdout","time":"2024-01-15T10:30:00Z"}`, r)
	require.NoError(t, err)
	require.True(t, partial)

	r = types.NewRecord()
	partial, err = p.Parse(`{"log":"part two\n","stream":"stdout","time":"2024-01-15T10:30:00Z"}`, r)
	require.NoError(t, err)
	require.False(t, partial)

	v, _ := r.Get("message")
	require.Equal(t, "part one part two", v)
}

func TestDockerParserTracksPartialsPerStream(t *testing.T) {
	p := NewDockerParser()

	r := types.NewRecord()
	partial, err := p.Parse(`{"log":"stdout start ","stream":"stdout","time":"2024-01-15T10:30:00Z"}`, r)
	require.NoError(t, err)
	require.True(t, partial)

	// A complete stderr line in between does not disturb the stdout partial.
	r = types.NewRecord()
	partial, err = p.Parse(`{"log":"stderr line\n","stream":"stderr","time":"2024-01-15T10:30:00Z"}`, r)
	require.NoError(t, err)
	require.False(t, partial)
	v, _ := r.Get("message")
	require.Equal(t, "stderr line", v)

	r = types.NewRecord()
	partial, err = p.Parse(`{"log":"stdout end\n","stream":"stdout","time":"2024-01-15T10:30:00Z"}`, r)
	require.NoError(t, err)
	require.False(t, partial)
	v, _ = r.Get("message")
	require.Equal(t, "stdout start stdout end", v)
}

func TestDockerParserMalformedLine(t *testing.T) {
	p := NewDockerParser()
	_, err := p.Parse(`not json at all`, types.NewRecord())
	require.Error(t, err)
}

func TestDockerParserBadTimestampFallsBackToNow(t *testing.T) {
	p := NewDockerParser()
	r := types.NewRecord()

	partial, err := p.Parse(`{"log":"hello\n","stream":"stdout","time":"bogus"}`, r)
	require.NoError(t, err)
	require.False(t, partial)

	v, ok := r.Get("timestamp")
	require.True(t, ok)
	require.NotEmpty(t, v)
}
