// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the narrow sink interface the orchestrator
// emits stage-duration and guard-verdict events through, plus a default
// Prometheus-backed implementation. Observability backends are an
// out-of-scope external collaborator per the spec: the core never
// serves its own /metrics endpoint, it only calls Sink methods, so a
// caller can register the default sink's collectors with its own
// registry, or swap in a no-op/alternate sink entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives structured events from a pipeline run. Implementations
// must be safe for concurrent use: render and validate stages call
// ObserveStage from a bounded worker pool.
type Sink interface {
	// ObserveStage records how long one stage took for one rule (or
	// "" for whole-pipeline stages that aren't per-rule).
	ObserveStage(stage, rule string, d time.Duration)
	// ObserveGuard records one guard verdict's pass/fail outcome.
	ObserveGuard(guardID string, passed bool)
	// ObserveRun records the terminal outcome of an entire pipeline run.
	ObserveRun(mode string, outcome string)
}

// NoopSink discards every event. Used when the caller hasn't wired a
// metrics backend.
type NoopSink struct{}

func (NoopSink) ObserveStage(string, string, time.Duration) {}
func (NoopSink) ObserveGuard(string, bool)                  {}
func (NoopSink) ObserveRun(string, string)                  {}

// PrometheusSink is the default Sink, backed by client_golang counters
// and histograms. Construct with NewPrometheusSink and register its
// collectors with a *prometheus.Registry of the caller's choosing; this
// package never creates or serves its own registry.
type PrometheusSink struct {
	stageDuration *prometheus.HistogramVec
	guardVerdicts *prometheus.CounterVec
	runOutcomes   *prometheus.CounterVec
}

// NewPrometheusSink builds a PrometheusSink. The collectors it owns are
// returned by Collectors, so the caller can register them (e.g.
// registry.MustRegister(sink.Collectors()...)).
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proofc",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one pipeline stage, optionally scoped to one rule.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "rule"}),
		guardVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proofc",
			Name:      "guard_verdicts_total",
			Help:      "Count of guard verdicts by guard id and pass/fail outcome.",
		}, []string{"guard_id", "status"}),
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proofc",
			Name:      "runs_total",
			Help:      "Count of pipeline runs by mode and terminal outcome.",
		}, []string{"mode", "outcome"}),
	}
}

// Collectors returns every collector this sink owns, for registration
// with the caller's registry.
func (s *PrometheusSink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.stageDuration, s.guardVerdicts, s.runOutcomes}
}

func (s *PrometheusSink) ObserveStage(stage, rule string, d time.Duration) {
	s.stageDuration.WithLabelValues(stage, rule).Observe(d.Seconds())
}

func (s *PrometheusSink) ObserveGuard(guardID string, passed bool) {
	status := "fail"
	if passed {
		status = "pass"
	}
	s.guardVerdicts.WithLabelValues(guardID, status).Inc()
}

func (s *PrometheusSink) ObserveRun(mode, outcome string) {
	s.runOutcomes.WithLabelValues(mode, outcome).Inc()
}
