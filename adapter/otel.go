package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/dscore/pkg/telemetry"
)

// GlobalTracing builds lifecycle instruments on the globally registered
// OpenTelemetry providers. They are no-ops until an SDK installs real ones.
func GlobalTracing() (*telemetry.Tracing, error) {
	return telemetry.NewTracing(otel.GetTracerProvider(), otel.GetMeterProvider())
}
