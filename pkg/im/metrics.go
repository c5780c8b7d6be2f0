package im

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts message traffic. A nil *Metrics records nothing.
type Metrics struct {
	decoded        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	encoded        *prometheus.CounterVec
	offlineRecords *prometheus.CounterVec
	delivered      prometheus.Counter
}

// NewMetrics registers the message counters with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		decoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "icbm",
			Name:      "decoded_total",
			Help:      "Incoming messages decoded, by channel",
		}, []string{"channel"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "icbm",
			Name:      "dropped_total",
			Help:      "Incoming frames dropped, by reason",
		}, []string{"reason"}),
		encoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "icbm",
			Name:      "encoded_total",
			Help:      "Outgoing messages encoded, by channel",
		}, []string{"channel"}),
		offlineRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "offline",
			Name:      "records_total",
			Help:      "Offline backlog records, by outcome",
		}, []string{"outcome"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "oscar",
			Subsystem: "icbm",
			Name:      "delivered_total",
			Help:      "Messages handed to subscribers",
		}),
	}
}

func (m *Metrics) observeDecoded(ch Channel) {
	if m == nil {
		return
	}
	m.decoded.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) observeDropped(err error) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(DropReason(err)).Inc()
}

func (m *Metrics) observeEncoded(ch Channel) {
	if m == nil {
		return
	}
	m.encoded.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) observeOffline(outcome string) {
	if m == nil {
		return
	}
	m.offlineRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}
