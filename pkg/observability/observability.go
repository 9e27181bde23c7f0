// Copyright 2025 Certen Protocol
//
// Observability surface: a Prometheus registry (github.com/prometheus/
// client_golang, declared in the dependency stack but never wired into
// any component until now) plus an HTTP health endpoint shaped like
// main.go's HealthStatus/ /health / /health/detailed trio, generalized
// from single-process component tracking to per-chain connectivity.

package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every Prometheus collector this network's components
// report to.
type Metrics struct {
	MessagesStuck        prometheus.Gauge
	MessagesDropped      *prometheus.CounterVec // labeled by reason
	ProviderPoisonedTotal *prometheus.CounterVec // labeled by chain
	StageLatency         *prometheus.HistogramVec // labeled by stage
	MessagesProcessed    *prometheus.CounterVec   // labeled by chain, outcome
}

// NewMetrics registers every collector against reg and returns the
// handles components hold onto to report values.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesStuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hyperlane_agent",
			Name:      "messages_stuck",
			Help:      "Number of pending operations currently in the Stuck state.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperlane_agent",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped, labeled by drop reason.",
		}, []string{"reason"}),
		ProviderPoisonedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperlane_agent",
			Name:      "provider_poisoned_total",
			Help:      "Count of provider-poisoned classifications, labeled by chain.",
		}, []string{"chain"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hyperlane_agent",
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds, labeled by stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperlane_agent",
			Name:      "messages_processed_total",
			Help:      "Messages processed, labeled by destination chain and outcome.",
		}, []string{"chain", "outcome"}),
	}

	reg.MustRegister(m.MessagesStuck, m.MessagesDropped, m.ProviderPoisonedTotal, m.StageLatency, m.MessagesProcessed)
	return m
}

// ObserveStage times one pipeline stage's execution and records it.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ChainStatus is "connected", "disconnected", or "degraded" for one
// configured chain's adapter.
type ChainStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Health tracks overall and per-chain status for the /health and
// /health/detailed endpoints, the same shape main.go's HealthStatus
// exposes generalized from a fixed component list to a dynamic chain
// set.
type Health struct {
	mu         sync.RWMutex
	chains     map[string]string
	storeState string
	startTime  time.Time
}

// NewHealth constructs a Health tracker with every component unknown.
func NewHealth() *Health {
	return &Health{chains: make(map[string]string), storeState: "unknown", startTime: time.Now()}
}

func (h *Health) SetChain(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chains[name] = status
}

func (h *Health) SetStore(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.storeState = status
}

type healthSummary struct {
	Status        string        `json:"status"`
	Store         string        `json:"store"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

type healthDetail struct {
	healthSummary
	Chains []ChainStatus `json:"chains"`
}

func (h *Health) overallStatus() string {
	if h.storeState == "disconnected" {
		return "error"
	}
	degraded := false
	for _, s := range h.chains {
		if s == "disconnected" {
			return "error"
		}
		if s != "connected" {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "ok"
}

func (h *Health) summary() healthSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return healthSummary{
		Status:        h.overallStatus(),
		Store:         h.storeState,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

func (h *Health) detail() healthDetail {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d := healthDetail{healthSummary: healthSummary{
		Status:        h.overallStatus(),
		Store:         h.storeState,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}}
	for name, status := range h.chains {
		d.Chains = append(d.Chains, ChainStatus{Name: name, Status: status})
	}
	return d
}

// Mux builds the /metrics, /health and /health/detailed handlers.
func Mux(reg *prometheus.Registry, health *Health) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(health.summary())
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(health.detail())
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	return mux
}
