package unpack

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonInsufficient = "insufficient"
	reasonMalformed    = "malformed"
	reasonLimit        = "limit"
)

// Metrics collects buffer and decode statistics. A nil *Metrics records nothing,
// and one Metrics may be shared by many Unpackers.
type Metrics struct {
	refills     prometheus.Counter
	refillBytes prometheus.Counter
	grows       prometheus.Counter
	rewinds     prometheus.Counter
	values      prometheus.Counter
	failures    *prometheus.CounterVec
	capacity    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		refills: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "unpack_refills_total",
			Help: "Total number of successful buffer refills from the source.",
		}),
		refillBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "unpack_refill_bytes_total",
			Help: "Total number of bytes added to buffers.",
		}),
		grows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "unpack_buffer_grows_total",
			Help: "Total number of buffer reallocations.",
		}),
		rewinds: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "unpack_buffer_rewinds_total",
			Help: "Total number of cursor rewinds on fully consumed buffers.",
		}),
		values: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "unpack_values_total",
			Help: "Total number of top-level values decoded.",
		}),
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "unpack_failures_total",
			Help: "Total number of failed decode steps by reason.",
		}, []string{"reason"}),
		capacity: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "unpack_buffer_capacity_bytes",
			Help: "Capacity of the most recently allocated buffer.",
		}),
	}
}

func (m *Metrics) refilled(n int) {
	if m == nil {
		return
	}
	m.refills.Inc()
	m.refillBytes.Add(float64(n))
}

func (m *Metrics) grew(capacity int) {
	if m == nil {
		return
	}
	m.grows.Inc()
	m.capacity.Set(float64(capacity))
}

func (m *Metrics) observeCapacity(capacity int) {
	if m == nil {
		return
	}
	m.capacity.Set(float64(capacity))
}

func (m *Metrics) rewound() {
	if m == nil {
		return
	}
	m.rewinds.Inc()
}

func (m *Metrics) decoded() {
	if m == nil {
		return
	}
	m.values.Inc()
}

func (m *Metrics) failed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}
