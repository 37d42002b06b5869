// Package metrics exposes the ACE loop's Prometheus collectors — the
// first real consumer of the teacher's prometheus/client_golang dependency.
// Naming mirrors the teacher's zap field-naming conventions
// (role_noun_suffix) translated into Prometheus's metric/label conventions.
package metrics

import (
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the ACE loop emits to, so callers wire
// one struct instead of a dozen package-level globals.
type Registry struct {
	GeneratorPlansTotal    *prometheus.CounterVec
	ExecutorOutcomesTotal  *prometheus.CounterVec
	ReflectorInsightsTotal *prometheus.CounterVec
	CuratorApplyTotal      *prometheus.CounterVec
	CycleDurationSeconds   *prometheus.HistogramVec
	PlaybookEntries        *prometheus.GaugeVec
	PlaybookVersionInfo    *prometheus.GaugeVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		GeneratorPlansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "generator",
			Name:      "plans_total",
			Help:      "Trading plans produced by the Generator, labeled by bias and whether generation degraded to neutral.",
		}, []string{"bias", "error"}),

		ExecutorOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "executor",
			Name:      "outcomes_total",
			Help:      "Replayed trade outcomes, labeled by outcome and execution method.",
		}, []string{"outcome", "method"}),

		ReflectorInsightsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "reflector",
			Name:      "insights_total",
			Help:      "Insights proposed by the Reflector, labeled by kind.",
		}, []string{"kind"}),

		CuratorApplyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ace",
			Subsystem: "curator",
			Name:      "applications_total",
			Help:      "Curator update-algebra applications, labeled by whether they applied or were rejected.",
		}, []string{"result"}),

		CycleDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ace",
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a DailyCycle or WeeklyCycle run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cycle"}),

		PlaybookEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ace",
			Name:      "playbook_entries",
			Help:      "Current entry count per Playbook section.",
		}, []string{"section"}),

		PlaybookVersionInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ace",
			Name:      "playbook_version_info",
			Help:      "Always 1; the Playbook's current version is carried as a label.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		r.GeneratorPlansTotal,
		r.ExecutorOutcomesTotal,
		r.ReflectorInsightsTotal,
		r.CuratorApplyTotal,
		r.CycleDurationSeconds,
		r.PlaybookEntries,
		r.PlaybookVersionInfo,
	)

	return r
}

// ObservePlaybook refreshes the Playbook gauges after a Curator.Apply or a
// Store.Load, resetting stale section labels before setting current ones.
func (r *Registry) ObservePlaybook(pb types.Playbook) {
	r.PlaybookEntries.Reset()
	for section, entries := range pb.Sections {
		r.PlaybookEntries.WithLabelValues(section).Set(float64(len(entries)))
	}

	r.PlaybookVersionInfo.Reset()
	r.PlaybookVersionInfo.WithLabelValues(pb.Metadata.Version).Set(1)
}
