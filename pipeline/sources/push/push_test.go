package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPushSourceRequiresListenAddr(t *testing.T) {
	_, err := NewPushSource(PushSourceConfig{Name: "api"})
	require.Error(t, err)
}

func TestHandleAcceptsNDJSON(t *testing.T) {
	s, err := NewPushSource(PushSourceConfig{Name: "api", ListenAddr: ":0"})
	require.NoError(t, err)

	body := strings.NewReader(`{"message":"one"}` + "\n" + `{"message":"two"}` + "\n")
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	w := httptest.NewRecorder()
	s.handle(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, s.internalQueue, 2)

	rec := <-s.internalQueue
	v, _ := rec.Get("message")
	require.Equal(t, "one", v)
	v, _ = rec.Get("source")
	require.Equal(t, "api", v)
	require.False(t, rec.IngestTime().IsZero())
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	s, err := NewPushSource(PushSourceConfig{Name: "api", ListenAddr: ":0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{not json}\n"))
	w := httptest.NewRecorder()
	s.handle(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRejectsNonPost(t *testing.T) {
	s, err := NewPushSource(PushSourceConfig{Name: "api", ListenAddr: ":0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	w := httptest.NewRecorder()
	s.handle(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleRejectsWhenQueueFull(t *testing.T) {
	s, err := NewPushSource(PushSourceConfig{Name: "api", ListenAddr: ":0", QueueSize: 1})
	require.NoError(t, err)

	body := strings.NewReader(`{"message":"one"}` + "\n" + `{"message":"two"}` + "\n")
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	w := httptest.NewRecorder()
	s.handle(w, req)

	// The batcher is not running, so the second record finds the queue full.
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Len(t, s.internalQueue, 1)
}

func TestPushSourceBatchesRecords(t *testing.T) {
	s, err := NewPushSource(PushSourceConfig{
		Name:         "api",
		ListenAddr:   "127.0.0.1:0",
		MaxBatchSize: 2,
		MaxBatchWait: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	body := strings.NewReader(`{"message":"one"}` + "\n" + `{"message":"two"}` + "\n")
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	w := httptest.NewRecorder()
	s.handle(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case batch := <-s.Queue():
		require.Len(t, batch.Records, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch produced")
	}
}
