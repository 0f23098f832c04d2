package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bytesBucket = prometheus.ExponentialBuckets(256, 4, 8)

var (
	recordersMu sync.Mutex
	recorders   = map[string]*handlerRecorder{}
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	respSize   int
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.respSize += len(b)
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}

type handlerRecorder struct {
	InflightRequests       *prometheus.GaugeVec
	RequestsReceived       *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	RequestBytesReceived   *prometheus.HistogramVec
}

func (rec *handlerRecorder) registerMetrics(subsystem string) {
	rec.InflightRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      "in_flight_requests",
	}, []string{"path"})

	rec.RequestsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Counter of requests received for this http server",
	}, []string{"path", "code"})

	rec.RequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "A histogram of request latencies.",
	}, []string{"path"})

	rec.RequestBytesReceived = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      "request_bytes",
		Help:      "A histogram of request sizes from the wrapped server.",
		Buckets:   bytesBucket,
	}, []string{"path"})
}

// HandlerFuncRecorder wraps a handler with generic HTTP server metrics.
// Recorders are shared per subsystem so a handler can be rebuilt, for
// instance across configuration reloads, without re-registering collectors.
func HandlerFuncRecorder(subsystem string, next http.HandlerFunc) http.HandlerFunc {
	recordersMu.Lock()
	h, ok := recorders[subsystem]
	if !ok {
		h = &handlerRecorder{}
		h.registerMetrics(subsystem)
		recorders[subsystem] = h
	}
	recordersMu.Unlock()
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := statusRecorder{w, 200, 0}
		path := r.URL.Path
		h.InflightRequests.WithLabelValues(path).Inc()

		next.ServeHTTP(&rec, r)
		status := strconv.Itoa(rec.statusCode)
		h.RequestsReceived.WithLabelValues(path, status).Inc()
		h.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		h.RequestBytesReceived.WithLabelValues(path).Observe(float64(r.ContentLength))
		h.InflightRequests.WithLabelValues(path).Dec()
	}
}
