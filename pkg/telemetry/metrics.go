/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package telemetry holds the prometheus collectors and OpenTelemetry instruments
// shared by the component runtime and its manager.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

const namespace = "dscore"

// Metrics is the set of prometheus collectors of the runtime.
type Metrics struct {
	LibrariesLoaded prometheus.Gauge
	LoadFailures    *prometheus.CounterVec
	Instances       *prometheus.GaugeVec
	HookMisses      *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LibrariesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "libraries_loaded",
			Help:      "Number of component libraries currently mapped.",
		}),
		LoadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "library_load_failures_total",
			Help:      "Library load attempts that failed.",
		}, []string{"library"}),
		Instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_instances",
			Help:      "Live instances per component.",
		}, []string{"component"}),
		HookMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_hook_absent_total",
			Help:      "Optional lifecycle methods a component library does not export.",
		}, []string{"component", "method"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_rollbacks_total",
			Help:      "Instances discarded before publication.",
		}, []string{"component", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.LibrariesLoaded, m.LoadFailures, m.Instances, m.HookMisses, m.Rollbacks)
	}
	return m
}
