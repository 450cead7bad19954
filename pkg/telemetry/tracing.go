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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/dscore"

// Tracing wraps lifecycle phases in spans and records call counts and durations.
type Tracing struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTracing builds the instruments. Nil providers fall back to no-op ones.
func NewTracing(tp trace.TracerProvider, mp metric.MeterProvider) (*Tracing, error) {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	calls, err := meter.Int64Counter("dscore.lifecycle.calls",
		metric.WithDescription("Lifecycle phases executed."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("dscore.lifecycle.duration",
		metric.WithDescription("Duration of lifecycle phases."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Tracing{
		tracer:   tp.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
	}, nil
}

// NopTracing returns instruments backed by no-op providers.
func NopTracing() *Tracing {
	t, _ := NewTracing(nil, nil)
	return t
}

// Phase starts a span named after phase. The returned func ends it and records
// the outcome; pass the phase's error, or nil.
func (t *Tracing) Phase(ctx context.Context, component, phase string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("component", component),
		attribute.String("phase", phase),
	}
	ctx, span := t.tracer.Start(ctx, "dscore."+phase, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		all := append(attrs, attribute.String("outcome", outcome))
		t.calls.Add(ctx, 1, metric.WithAttributes(all...))
		t.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(all...))
		span.End()
	}
}
