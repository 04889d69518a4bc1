// Package observability registers the daemon's prometheus metrics.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records forwarder and sponsorship activity for the RPC surface.
type RelayMetrics struct {
	requests *prometheus.CounterVec
	rejects  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	feesWei  prometheus.Counter
}

var (
	relayOnce sync.Once
	relayReg  *RelayMetrics
)

// Relay returns the lazily-initialised relay metrics registry.
func Relay() *RelayMetrics {
	relayOnce.Do(func() {
		relayReg = &RelayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gasstation",
				Subsystem: "relay",
				Name:      "requests_total",
				Help:      "Total relay RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gasstation",
				Subsystem: "relay",
				Name:      "rejections_total",
				Help:      "Requests refused before execution, segmented by method and reason.",
			}, []string{"method", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "gasstation",
				Subsystem: "relay",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for relay RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			feesWei: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gasstation",
				Subsystem: "sponsorship",
				Name:      "fees_debited_wei_total",
				Help:      "Cumulative fees debited by the sponsor, in wei.",
			}),
		}
		prometheus.MustRegister(
			relayReg.requests,
			relayReg.rejects,
			relayReg.latency,
			relayReg.feesWei,
		)
	})
	return relayReg
}

// ObserveRequest records one handled RPC call.
func (m *RelayMetrics) ObserveRequest(method string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.FormatBool(ok)).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRejection records a request refused before execution.
func (m *RelayMetrics) ObserveRejection(method, reason string) {
	if m == nil {
		return
	}
	m.rejects.WithLabelValues(method, reason).Inc()
}

// AddFee accumulates a debited sponsorship fee.
func (m *RelayMetrics) AddFee(wei float64) {
	if m == nil || wei <= 0 {
		return
	}
	m.feesWei.Add(wei)
}
