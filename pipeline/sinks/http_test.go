package sinks

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"

	"github.com/routeflow/routeflow/pipeline/types"
)

func testBatch(messages ...string) *types.RecordBatch {
	records := make([]*types.Record, 0, len(messages))
	for _, m := range messages {
		r := types.NewRecord()
		r.Set("message", m)
		records = append(records, r)
	}
	return &types.RecordBatch{Records: records, Ack: func() {}}
}

func newTestHttpSink(t *testing.T, uri string, compression string) *HttpSink {
	t.Helper()
	sink, err := NewHttpSink(HttpSinkConfig{
		Name:        "test",
		URI:         uri,
		Codec:       CodecJSON,
		Compression: compression,
		Headers:     map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	return sink
}

func TestHttpSinkConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config HttpSinkConfig
	}{
		{"bad scheme", HttpSinkConfig{Name: "t", URI: "ftp://host/logs", Codec: CodecJSON}},
		{"bad codec", HttpSinkConfig{Name: "t", URI: "http://host/logs", Codec: "protobuf"}},
		{"bad compression", HttpSinkConfig{Name: "t", URI: "http://host/logs", Codec: CodecJSON, Compression: "zstd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHttpSink(tt.config)
			require.Error(t, err)
		})
	}
}

func TestHttpSinkAcknowledgesOn2xx(t *testing.T) {
	var gotBody []map[string]any
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Api-Key"))
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			gotBody = append(gotBody, m)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := newTestHttpSink(t, srv.URL, CompressionNone)
	acked := false
	batch := testBatch("one", "two")
	batch.Ack = func() { acked = true }

	res := sink.Submit(context.Background(), batch)
	require.Equal(t, types.DeliveryAcknowledged, res.Status)
	require.True(t, acked)
	require.Equal(t, "secret", gotHeader.Load())
	require.Len(t, gotBody, 2)
	require.Equal(t, "one", gotBody[0]["message"])
	require.Equal(t, "two", gotBody[1]["message"])
}

func TestHttpSinkGzipBody(t *testing.T) {
	var messages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		gr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		raw, err := io.ReadAll(gr)
		require.NoError(t, err)
		sc := bufio.NewScanner(bytes.NewReader(raw))
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			messages = append(messages, m["message"].(string))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := newTestHttpSink(t, srv.URL, CompressionGzip)
	res := sink.Submit(context.Background(), testBatch("hello"))
	require.Equal(t, types.DeliveryAcknowledged, res.Status)
	require.Equal(t, []string{"hello"}, messages)
}

func TestHttpSinkRetryableOn429And5xx(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		sink := newTestHttpSink(t, srv.URL, CompressionNone)
		res := sink.Submit(context.Background(), testBatch("x"))
		require.Equal(t, types.DeliveryRetryable, res.Status, "status code %d", code)
		srv.Close()
	}
}

func TestHttpSinkHonorsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := newTestHttpSink(t, srv.URL, CompressionNone)
	res := sink.Submit(context.Background(), testBatch("x"))
	require.Equal(t, types.DeliveryRetryable, res.Status)
	require.Equal(t, 7*time.Second, res.RetryAfter)
}

func TestHttpSinkTerminalOnOther4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := newTestHttpSink(t, srv.URL, CompressionNone)
	acked := false
	batch := testBatch("x")
	batch.Ack = func() { acked = true }

	res := sink.Submit(context.Background(), batch)
	require.Equal(t, types.DeliveryTerminal, res.Status)
	require.False(t, acked)
}

func TestHttpSinkRetryableOnConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sink := newTestHttpSink(t, srv.URL, CompressionNone)
	res := sink.Submit(context.Background(), testBatch("x"))
	require.Equal(t, types.DeliveryRetryable, res.Status)
}
