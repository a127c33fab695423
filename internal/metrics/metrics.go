package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	inform "github.com/dmke/unispi"
)

// Metrics contains all Prometheus metrics of the decoder and the relay
type Metrics struct {
	// decoder metrics
	PacketsDecoded *prometheus.CounterVec
	DecodeFailures *prometheus.CounterVec
	DecodeWarnings prometheus.Counter
	DefaultKeyUsed prometheus.Counter

	// relay metrics
	RelayRequests  *prometheus.CounterVec
	RelayDuration  prometheus.Histogram
	UpstreamErrors prometheus.Counter
	Transactions   prometheus.Counter

	gatherer prometheus.Gatherer
}

var _ inform.Observer = (*Metrics)(nil)

// New creates all metrics and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		PacketsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inform_packets_decoded_total",
			Help: "Total number of successfully decoded inform packets",
		}, []string{"encryption", "compression"}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inform_decode_failures_total",
			Help: "Total number of inform packets which failed to decode, by stage",
		}, []string{"stage"}),
		DecodeWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "inform_decode_warnings_total",
			Help: "Total number of non-fatal decode warnings",
		}),
		DefaultKeyUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "inform_default_key_total",
			Help: "Total number of packets decrypted with the default key",
		}),

		RelayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inform_relay_requests_total",
			Help: "Total number of relayed requests, by upstream status code",
		}, []string{"status"}),
		RelayDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inform_relay_duration_seconds",
			Help:    "Round trip time to the controller",
			Buckets: prometheus.DefBuckets,
		}),
		UpstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "inform_relay_upstream_errors_total",
			Help: "Total number of requests the controller could not be reached for",
		}),
		Transactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "inform_transactions_total",
			Help: "Total number of decoded request/response pairs written",
		}),

		gatherer: reg,
	}
}

// Observe implements inform.Observer.
func (m *Metrics) Observe(res *inform.Result) {
	m.DecodeWarnings.Add(float64(len(res.Warnings)))
	if stage, failed := res.FailedStage(); failed {
		m.DecodeFailures.WithLabelValues(stage.String()).Inc()
		return
	}
	if res.Head != nil {
		m.PacketsDecoded.WithLabelValues(res.Head.Encryption.String(), res.Head.Compression.String()).Inc()
	}
	if res.KeyUsed == inform.DefaultKeyMarker {
		m.DefaultKeyUsed.Inc()
	}
}

// RecordRelay records one relayed request. status is 0 if the upstream
// could not be reached.
func (m *Metrics) RecordRelay(status int, d time.Duration) {
	if status == 0 {
		m.UpstreamErrors.Inc()
	}
	m.RelayRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.RelayDuration.Observe(d.Seconds())
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
