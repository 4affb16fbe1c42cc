// Package metrics gathers per-channel and per-stage-elimination counters
// for one batch run using a private prometheus.Registry. Counters are
// gathered into a plain snapshot and folded into BatchSummary; nothing in
// this package is ever exposed over HTTP — the core has no network I/O
// (spec Non-goals), and CLI runs are single-shot rather than a scraped
// daemon (see DESIGN.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rezahh107/Matrix2/internal/policy"
)

const (
	channelMetric = "allocator_channel_total"
	stageMetric   = "allocator_stage_elimination_total"
	outcomeMetric = "allocator_outcome_total"
)

// Collector owns one batch run's counters, registered against a private
// registry so concurrent batches (e.g. in tests) never collide on the
// default global registry.
type Collector struct {
	registry       *prometheus.Registry
	channelTotal   *prometheus.CounterVec
	stageEliminate *prometheus.CounterVec
	outcomeTotal   *prometheus.CounterVec
}

// New builds a Collector with its own private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	return &Collector{
		registry: reg,
		channelTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: channelMetric,
			Help: "Students routed through each allocation channel.",
		}, []string{"channel"}),
		stageEliminate: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: stageMetric,
			Help: "Count of times a stage was the first to reach zero survivors.",
		}, []string{"stage"}),
		outcomeTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: outcomeMetric,
			Help: "Per-student outcome status counts.",
		}, []string{"status"}),
	}
}

// ObserveChannel records one student routed to ch.
func (c *Collector) ObserveChannel(ch policy.Channel) {
	c.channelTotal.WithLabelValues(string(ch)).Inc()
}

// ObserveStageElimination records stage as the first stage that reached
// zero survivors for one student.
func (c *Collector) ObserveStageElimination(stage policy.StageName) {
	c.stageEliminate.WithLabelValues(string(stage)).Inc()
}

// ObserveOutcome records one student's final outcome status.
func (c *Collector) ObserveOutcome(status string) {
	c.outcomeTotal.WithLabelValues(status).Inc()
}

// ChannelCounts returns the gathered per-channel counts.
func (c *Collector) ChannelCounts() map[string]int {
	return c.gather(channelMetric, "channel")
}

// StageEliminationCounts returns the gathered per-stage first-elimination
// counts (SPEC_FULL §C.5).
func (c *Collector) StageEliminationCounts() map[string]int {
	return c.gather(stageMetric, "stage")
}

// OutcomeCounts returns the gathered per-status outcome counts.
func (c *Collector) OutcomeCounts() map[string]int {
	return c.gather(outcomeMetric, "status")
}

// gather reads one named CounterVec back out through the registry's
// Gather API, the read path client_golang itself documents (there is no
// pack call site to mirror, per DESIGN.md's note on this package).
func (c *Collector) gather(metricName, labelName string) map[string]int {
	out := make(map[string]int)
	families, err := c.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		if fam.GetName() != metricName {
			continue
		}
		for _, m := range fam.GetMetric() {
			var label string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName {
					label = lp.GetValue()
				}
			}
			out[label] = int(m.GetCounter().GetValue())
		}
	}
	return out
}
