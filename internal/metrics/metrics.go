// Package metrics exposes Prometheus instrumentation for the detection pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus registry and pipeline metrics.
// It implements the rule engine's Recorder interface.
type Collector struct {
	registry *prometheus.Registry

	ruleEvaluations *prometheus.CounterVec
	ruleTriggers    *prometheus.CounterVec
	ruleFaults      *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec

	transactionsProcessed prometheus.Counter
	transactionsFlagged   prometheus.Counter
	transactionsFaulted   prometheus.Counter
	alertsRaised          *prometheus.CounterVec
	casesOpened           prometheus.Counter
	evaluationDuration    prometheus.Histogram
	scoreDistribution     prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		ruleEvaluations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_rule_evaluations_total",
			Help: "Rule evaluations, partitioned by rule and cache outcome",
		}, []string{"rule_id", "cached"}),
		ruleTriggers: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_rule_triggers_total",
			Help: "Rule evaluations that produced a hit",
		}, []string{"rule_id"}),
		ruleFaults: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_rule_faults_total",
			Help: "Rule evaluations that returned an error and were skipped",
		}, []string{"rule_id"}),
		ruleDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harrier_rule_evaluation_duration_seconds",
			Help:    "Time spent evaluating a single rule",
			Buckets: prometheus.DefBuckets,
		}, []string{"rule_id"}),
		transactionsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "harrier_transactions_processed_total",
			Help: "Transactions run through the detection pipeline",
		}),
		transactionsFlagged: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "harrier_transactions_flagged_total",
			Help: "Transactions flagged by at least one rule",
		}),
		transactionsFaulted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "harrier_transactions_faulted_total",
			Help: "Transactions that failed processing",
		}),
		alertsRaised: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_alerts_raised_total",
			Help: "Alerts raised, partitioned by rule",
		}, []string{"rule_id"}),
		casesOpened: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "harrier_cases_opened_total",
			Help: "Investigation cases opened",
		}),
		evaluationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "harrier_evaluation_duration_seconds",
			Help:    "End-to-end evaluation time per transaction",
			Buckets: prometheus.DefBuckets,
		}),
		scoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "harrier_evaluation_score_distribution",
			Help:    "Distribution of final evaluation scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
	}
}

// RuleEvaluated records a completed rule evaluation.
func (c *Collector) RuleEvaluated(ruleID string, d time.Duration, cached bool) {
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	c.ruleEvaluations.WithLabelValues(ruleID, cachedLabel).Inc()
	c.ruleDuration.WithLabelValues(ruleID).Observe(d.Seconds())
}

// RuleTriggered records a rule hit.
func (c *Collector) RuleTriggered(ruleID string) {
	c.ruleTriggers.WithLabelValues(ruleID).Inc()
}

// RuleFaulted records a rule evaluation error.
func (c *Collector) RuleFaulted(ruleID string) {
	c.ruleFaults.WithLabelValues(ruleID).Inc()
}

// TransactionProcessed records a pipeline pass for one transaction.
func (c *Collector) TransactionProcessed(d time.Duration, score int, flagged bool) {
	c.transactionsProcessed.Inc()
	if flagged {
		c.transactionsFlagged.Inc()
	}
	c.evaluationDuration.Observe(d.Seconds())
	c.scoreDistribution.Observe(float64(score))
}

// TransactionFaulted records a processing failure.
func (c *Collector) TransactionFaulted() {
	c.transactionsFaulted.Inc()
}

// AlertRaised records a raised alert.
func (c *Collector) AlertRaised(ruleID string) {
	c.alertsRaised.WithLabelValues(ruleID).Inc()
}

// CaseOpened records an opened case.
func (c *Collector) CaseOpened() {
	c.casesOpened.Inc()
}

// Handler returns the HTTP handler serving the registry in Prometheus format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
