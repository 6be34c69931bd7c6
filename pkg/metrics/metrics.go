package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the scan service.
type Metrics struct {
	Batches          *prometheus.CounterVec // labels: mode
	RecordsDecoded   prometheus.Counter
	RecordsMalformed prometheus.Counter
	BatchesRejected  prometheus.Counter
	ReaderErrors     *prometheus.CounterVec // labels: op

	StreamRearms prometheus.Counter
	Scanning     prometheus.Gauge // 0=idle, 1=scanning

	SessionTags       prometheus.Gauge
	DuplicatesDropped prometheus.Counter
	SessionsArchived  prometheus.Counter
	PublishErrors     prometheus.Counter
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nurscan_batches_total",
			Help: "Tag batches handled by the scan worker",
		}, []string{"mode"}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_records_decoded_total",
			Help: "Tag records decoded",
		}),
		RecordsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_records_malformed_total",
			Help: "Tag records skipped because they failed to decode",
		}),
		BatchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_batches_rejected_total",
			Help: "Batches whose declared size exceeded the payload",
		}),
		ReaderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nurscan_reader_errors_total",
			Help: "Failed reader calls by operation",
		}, []string{"op"}),
		StreamRearms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_stream_rearms_total",
			Help: "Inventory streams restarted after the reader stopped them",
		}),
		Scanning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nurscan_scanning",
			Help: "Inventory scan state (0=idle, 1=scanning)",
		}),
		SessionTags: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nurscan_session_tags",
			Help: "Unique tags in the current scan session",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_duplicates_dropped_total",
			Help: "Tag reads dropped because the epc was already in the session",
		}),
		SessionsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_sessions_archived_total",
			Help: "Scan sessions archived",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nurscan_publish_errors_total",
			Help: "Tag events the sink failed to accept",
		}),
	}

	reg.MustRegister(
		m.Batches,
		m.RecordsDecoded,
		m.RecordsMalformed,
		m.BatchesRejected,
		m.ReaderErrors,
		m.StreamRearms,
		m.Scanning,
		m.SessionTags,
		m.DuplicatesDropped,
		m.SessionsArchived,
		m.PublishErrors,
	)

	return m
}
