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

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.LibrariesLoaded.Inc()
	m.Instances.WithLabelValues("greeter").Set(2)
	m.HookMisses.WithLabelValues("greeter", "activate").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]*dto.MetricFamily)
	for _, f := range families {
		names[f.GetName()] = f
	}
	require.Contains(t, names, "dscore_libraries_loaded")
	assert.Equal(t, 1.0, names["dscore_libraries_loaded"].GetMetric()[0].GetGauge().GetValue())
	require.Contains(t, names, "dscore_component_instances")
	assert.Equal(t, 2.0, names["dscore_component_instances"].GetMetric()[0].GetGauge().GetValue())
	require.Contains(t, names, "dscore_lifecycle_hook_absent_total")
}

func TestNewMetricsWithoutRegistry(t *testing.T) {
	m := NewMetrics(nil)
	m.Rollbacks.WithLabelValues("c", "unsatisfied").Inc()

	var out dto.Metric
	require.NoError(t, m.Rollbacks.WithLabelValues("c", "unsatisfied").Write(&out))
	assert.Equal(t, 1.0, out.GetCounter().GetValue())
}

func TestPhase(t *testing.T) {
	tr := NopTracing()
	require.NotNil(t, tr)

	ctx, end := tr.Phase(context.Background(), "greeter", "activate")
	assert.NotNil(t, ctx)
	end(nil)

	_, end = tr.Phase(context.Background(), "greeter", "bind")
	end(errors.New("boom"))
}
