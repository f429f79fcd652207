// Package metrics exposes the Prometheus collectors referenced by
// SPEC_FULL's domain stack: scan/decision counters, the open-positions
// gauge, and a circuit-breaker trip counter. A single Collectors value is
// constructed once at startup and handed to the components that update
// it; none of them import the prometheus client directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles every metric the engine publishes on /metrics.
type Collectors struct {
	ScanTicksTotal        prometheus.Counter
	DecisionsTotal        *prometheus.CounterVec
	OpenPositions         prometheus.Gauge
	CircuitBreakerTripped prometheus.Counter
	PositionCloses        *prometheus.CounterVec
}

// New registers and returns a Collectors bundle against the default
// registry. Call once at startup; components are handed the same value.
func New() *Collectors {
	return &Collectors{
		ScanTicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cryptopaper_scan_ticks_total",
			Help: "Total number of completed scan ticks.",
		}),
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopaper_decisions_total",
			Help: "Total Decisions emitted, labeled by decision value.",
		}, []string{"decision"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cryptopaper_open_positions",
			Help: "Current number of open paper-trading positions.",
		}),
		CircuitBreakerTripped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cryptopaper_circuit_breaker_tripped_total",
			Help: "Total number of times the supervisor marked a job 'error' after repeated failures.",
		}),
		PositionCloses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopaper_position_closes_total",
			Help: "Total closed positions, labeled by exit reason.",
		}, []string{"reason"}),
	}
}
