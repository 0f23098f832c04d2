package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/routeflow/routeflow/metrics"
)

// A sink is considered in sustained failure after this many consecutive
// retryable delivery failures.  The first success resets it.
const sustainedFailureThreshold = 3

// Monitor tracks health of multiple components in a thread-safe manner.
// Liveness is the process itself; readiness degrades while any sink is in
// sustained retryable failure, which lets an orchestrator tell "broken"
// apart from "backed up".
type Monitor struct {
	mu        sync.RWMutex
	statuses  map[string]Status
	sinkFails map[string]int
}

func NewMonitor() *Monitor {
	return &Monitor{
		statuses:  make(map[string]Status),
		sinkFails: make(map[string]int),
	}
}

// Update records the health status for a named component.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the health status for a named component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses.
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// ObserveSinkDelivery records the outcome of one sink delivery attempt.
// reason is nil when the attempt settled the batch (acknowledged or
// terminally dropped).
func (m *Monitor) ObserveSinkDelivery(sink string, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason == nil {
		m.sinkFails[sink] = 0
		m.statuses[sink] = NewHealthy(sink, "")
		metrics.SinkUp.WithLabelValues(sink).Set(1)
		return
	}

	m.sinkFails[sink]++
	metrics.SinkUp.WithLabelValues(sink).Set(0)
	if m.sinkFails[sink] >= sustainedFailureThreshold {
		m.statuses[sink] = NewDegraded(sink, reason.Error())
	}
}

// ObservePipelineState records whether the active pipeline is running.  A
// pipeline that failed to start after a reload keeps readiness degraded
// until a later reload succeeds.
func (m *Monitor) ObservePipelineState(running bool, reason string) {
	if running {
		m.Update("pipeline", NewHealthy("pipeline", ""))
		return
	}
	m.Update("pipeline", NewUnhealthy("pipeline", reason))
}

// Ready reports whether every component is healthy.  Components that have
// never had a delivery opportunity are ready by definition.
func (m *Monitor) Ready() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, status := range m.statuses {
		if status.State != StateHealthy {
			return false, name + ": " + status.Message
		}
	}
	return true, ""
}

// LivenessHandler returns 200 while the process is scheduling work.
func (m *Monitor) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler returns 200 when every sink settled its last delivery,
// 503 with the component statuses otherwise.
func (m *Monitor) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready, reason := m.Ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"ready":      false,
			"reason":     reason,
			"components": m.GetAll(),
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ready": true})
}
