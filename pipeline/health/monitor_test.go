package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.Update("ingest", NewDegraded("ingest", "endpoint returned 503"))
	status, ok := m.Get("ingest")
	require.True(t, ok)
	require.Equal(t, StateDegraded, status.State)
	require.Equal(t, "endpoint returned 503", status.Message)
	require.False(t, status.Timestamp.IsZero())

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestMonitorReadyWithNoObservations(t *testing.T) {
	m := NewMonitor()
	ready, _ := m.Ready()
	require.True(t, ready)
}

func TestMonitorSustainedFailureDegrades(t *testing.T) {
	m := NewMonitor()
	boom := errors.New("connection refused")

	m.ObserveSinkDelivery("ingest", boom)
	m.ObserveSinkDelivery("ingest", boom)
	ready, _ := m.Ready()
	require.True(t, ready, "below the threshold the sink is still ready")

	m.ObserveSinkDelivery("ingest", boom)
	ready, reason := m.Ready()
	require.False(t, ready)
	require.Contains(t, reason, "ingest")

	status, ok := m.Get("ingest")
	require.True(t, ok)
	require.Equal(t, StateDegraded, status.State)
}

func TestMonitorSuccessResetsFailureStreak(t *testing.T) {
	m := NewMonitor()
	boom := errors.New("503")

	m.ObserveSinkDelivery("ingest", boom)
	m.ObserveSinkDelivery("ingest", boom)
	m.ObserveSinkDelivery("ingest", nil)
	m.ObserveSinkDelivery("ingest", boom)
	m.ObserveSinkDelivery("ingest", boom)

	ready, _ := m.Ready()
	require.True(t, ready, "the streak restarts after a settled delivery")
}

func TestMonitorPipelineStateAffectsReadiness(t *testing.T) {
	m := NewMonitor()

	m.ObservePipelineState(false, "sink broken: connection refused")
	ready, reason := m.Ready()
	require.False(t, ready)
	require.Contains(t, reason, "pipeline")

	m.ObservePipelineState(true, "")
	ready, _ = m.Ready()
	require.True(t, ready)
}

func TestLivenessHandler(t *testing.T) {
	m := NewMonitor()
	w := httptest.NewRecorder()
	m.LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessHandler(t *testing.T) {
	m := NewMonitor()

	w := httptest.NewRecorder()
	m.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	boom := errors.New("503")
	for i := 0; i < 3; i++ {
		m.ObserveSinkDelivery("ingest", boom)
	}

	w = httptest.NewRecorder()
	m.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, false, body["ready"])
	require.Contains(t, body["reason"], "ingest")
}
