package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the engine counters.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeFailure  = "failure"
)

// EngineMetrics records placement, distribution and tree activity.
type EngineMetrics struct {
	placementAttempts *prometheus.CounterVec
	placementDuration prometheus.Histogram
	distributions     *prometheus.CounterVec
	incomeDistributed prometheus.Counter
	incomeRows        prometheus.Counter
	treeBuilds        *prometheus.HistogramVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	placementAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_attempts_total",
		Help: "Placement insert attempts by outcome.",
	}, []string{"outcome"})
	placementDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "placement_duration_seconds",
		Help:    "Time spent registering a member, retries included.",
		Buckets: prometheus.DefBuckets,
	})
	distributions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distributions_total",
		Help: "Distribution runs by outcome code.",
	}, []string{"outcome"})
	incomeDistributed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "income_distributed_total",
		Help: "Sum of income amounts written.",
	})
	incomeRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "income_rows_total",
		Help: "Income rows written.",
	})
	treeBuilds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tree_build_duration_seconds",
		Help:    "Referral tree materialization time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	reg.MustRegister(placementAttempts, placementDuration, distributions, incomeDistributed, incomeRows, treeBuilds)
	return &EngineMetrics{
		placementAttempts: placementAttempts,
		placementDuration: placementDuration,
		distributions:     distributions,
		incomeDistributed: incomeDistributed,
		incomeRows:        incomeRows,
		treeBuilds:        treeBuilds,
	}
}

// IncPlacementAttempt counts one insert attempt.
func (m *EngineMetrics) IncPlacementAttempt(outcome string) {
	if m == nil || m.placementAttempts == nil {
		return
	}
	m.placementAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePlacement records the end-to-end registration duration.
func (m *EngineMetrics) ObservePlacement(duration time.Duration) {
	if m == nil || m.placementDuration == nil {
		return
	}
	m.placementDuration.Observe(duration.Seconds())
}

// IncDistribution counts a distribution run; outcome is "success" or an error code.
func (m *EngineMetrics) IncDistribution(outcome string) {
	if m == nil || m.distributions == nil {
		return
	}
	m.distributions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddIncome adds a committed run's totals.
func (m *EngineMetrics) AddIncome(amount float64, rows int) {
	if m == nil || m.incomeDistributed == nil {
		return
	}
	m.incomeDistributed.Add(amount)
	m.incomeRows.Add(float64(rows))
}

// ObserveTreeBuild records how long a tree view took; source is "db" or "cache".
func (m *EngineMetrics) ObserveTreeBuild(source string, duration time.Duration) {
	if m == nil || m.treeBuilds == nil {
		return
	}
	m.treeBuilds.WithLabelValues(normalizeLabel(source)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
