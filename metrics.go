package txtracker

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HealthState is the binary health verdict for one chain.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// MetricsTotals counts records by outcome. Total always equals
// Successful + Failed + Pending.
type MetricsTotals struct {
	Total      int
	Successful int
	Failed     int
	Pending    int
}

// MetricsPerformance aggregates latency and fee over successful records.
type MetricsPerformance struct {
	// AverageLatency is the mean of ConfirmedAt - SubmittedAt over
	// successful records; zero when none exist.
	AverageLatency time.Duration
	// AverageFee is the mean FeeAmount over successful records with a
	// known fee; nil when none exist.
	AverageFee *big.Int
}

// MetricsHealth is the chain health verdict at LastCheck. Breaker carries
// the circuit breaker state for the chain ("closed", "open", "probing").
type MetricsHealth struct {
	Status    HealthState
	Breaker   string
	LastCheck time.Time
}

// ChainMetrics is an on-demand snapshot for one chain kind, derived from
// the registry and its bounded history. It is never persisted.
type ChainMetrics struct {
	ChainKind   ChainKind
	Totals      MetricsTotals
	Performance MetricsPerformance
	Health      MetricsHealth
}

// MetricsFor computes the metrics snapshot for a chain kind from the
// records currently retained. A chain is unhealthy when its failed count
// (chain-reported failures and watch timeouts) exceeds its successful
// count.
func (t *Tracker) MetricsFor(kind ChainKind) ChainMetrics {
	records := t.registry.ListByChain(kind)

	m := ChainMetrics{
		ChainKind: kind,
		Health: MetricsHealth{
			Status:    HealthHealthy,
			Breaker:   t.getBreaker(kind).Snapshot().State.String(),
			LastCheck: time.Now(),
		},
	}

	var (
		latencySum time.Duration
		feeSum     = new(big.Int)
		feeCount   int64
	)

	for _, rec := range records {
		m.Totals.Total++
		switch rec.Status {
		case StatusFinalized:
			m.Totals.Successful++
			if !rec.ConfirmedAt.IsZero() {
				latencySum += rec.ConfirmedAt.Sub(rec.SubmittedAt)
			}
			if rec.FeeAmount != nil {
				feeSum.Add(feeSum, rec.FeeAmount)
				feeCount++
			}
		case StatusFailed, StatusTimedOut:
			m.Totals.Failed++
		default:
			m.Totals.Pending++
		}
	}

	if m.Totals.Successful > 0 {
		m.Performance.AverageLatency = latencySum / time.Duration(m.Totals.Successful)
	}
	if feeCount > 0 {
		m.Performance.AverageFee = feeSum.Div(feeSum, big.NewInt(feeCount))
	}
	if m.Totals.Failed > m.Totals.Successful {
		m.Health.Status = HealthUnhealthy
	}
	return m
}

var (
	promOnce   sync.Once
	sharedProm *promMetrics
)

// promMetrics are the process-wide prometheus collectors. Registered once
// on the default registry regardless of how many trackers exist.
type promMetrics struct {
	submitted *prometheus.CounterVec
	terminal  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	pending   *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	promOnce.Do(func() {
		pm := &promMetrics{
			submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "keypass_tx_submitted_total",
				Help: "Transactions submitted and registered, by chain kind.",
			}, []string{"chain"}),
			terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "keypass_tx_terminal_total",
				Help: "Transactions that reached a terminal state, by chain kind and status.",
			}, []string{"chain", "status"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "keypass_tx_retries_total",
				Help: "Resubmissions performed, by chain kind.",
			}, []string{"chain"}),
			pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "keypass_tx_pending",
				Help: "Transactions currently awaiting a terminal state, by chain kind.",
			}, []string{"chain"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "keypass_tx_confirmation_latency_seconds",
				Help:    "Submission-to-finality latency for successful transactions.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			}, []string{"chain"}),
		}
		prometheus.MustRegister(pm.submitted, pm.terminal, pm.retries, pm.pending, pm.latency)
		sharedProm = pm
	})
	return sharedProm
}

// lifecycleMetrics feeds record transitions into the prometheus
// collectors.
type lifecycleMetrics struct {
	prom *promMetrics
}

func newLifecycleMetrics() *lifecycleMetrics {
	return &lifecycleMetrics{prom: newPromMetrics()}
}

func (m *lifecycleMetrics) observeSubmitted(rec *TransactionRecord) {
	chain := string(rec.ChainKind)
	m.prom.submitted.WithLabelValues(chain).Inc()
	m.prom.pending.WithLabelValues(chain).Inc()
}

func (m *lifecycleMetrics) observeTerminal(rec *TransactionRecord) {
	chain := string(rec.ChainKind)
	m.prom.terminal.WithLabelValues(chain, string(rec.Status)).Inc()
	m.prom.pending.WithLabelValues(chain).Dec()
	if rec.Status == StatusFinalized && !rec.ConfirmedAt.IsZero() {
		m.prom.latency.WithLabelValues(chain).Observe(rec.ConfirmedAt.Sub(rec.SubmittedAt).Seconds())
	}
}

func (m *lifecycleMetrics) observeRetry(rec *TransactionRecord) {
	m.prom.retries.WithLabelValues(string(rec.ChainKind)).Inc()
}
