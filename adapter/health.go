package adapter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/dscore/pkg/lifecycle"
)

var componentStates = []lifecycle.ComponentState{
	lifecycle.Registered,
	lifecycle.Active,
	lifecycle.Failed,
	lifecycle.Stopped,
}

// StateSource lists components and reports their state.
type StateSource interface {
	Components() []string
	ComponentState(name string) (lifecycle.ComponentState, error)
}

// StateCollector exports the state of every component as a prometheus gauge set
// to 1 for the current state and 0 for the others.
type StateCollector struct {
	source StateSource
	desc   *prometheus.Desc
}

var _ prometheus.Collector = (*StateCollector)(nil)

func NewStateCollector(source StateSource) *StateCollector {
	return &StateCollector{
		source: source,
		desc: prometheus.NewDesc("dscore_component_state",
			"Current lifecycle state of each component.",
			[]string{"component", "state"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.source.Components() {
		current, err := c.source.ComponentState(name)
		if err != nil {
			continue
		}
		for _, state := range componentStates {
			v := 0.0
			if state == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, v, name, string(state))
		}
	}
}
