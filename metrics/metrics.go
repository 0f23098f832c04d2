package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Namespace = "routeflow"

	RecordsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "records_received_total",
		Help:      "Counter of records received from a source",
	}, []string{"source"})

	RecordsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "records_sent_total",
		Help:      "Counter of records delivered to a sink",
	}, []string{"source", "sink"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "records_dropped_total",
		Help:      "Counter of records dropped at a pipeline stage",
	}, []string{"source", "stage"})

	TransformFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "transform_failures_total",
		Help:      "Counter of records rejected by a transform program",
	}, []string{"source", "transform"})

	SinkRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "sink_retries_total",
		Help:      "Counter of sink delivery retries",
	}, []string{"sink"})

	BatchesLost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "batches_lost_total",
		Help:      "Counter of batches abandoned at shutdown after the drain timeout",
	}, []string{"sink"})

	SinkUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "sink_up",
		Help:      "1 when the sink acknowledged its most recent delivery attempt",
	}, []string{"sink"})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "config_reloads_total",
		Help:      "Counter of configuration reload attempts",
	}, []string{"status"})
)
