// Package telemetry exposes the OpenTelemetry meter used for SDK self-metrics.
//
// The SDK never installs a meter provider of its own: instruments are
// registered against whatever global provider the host application configured,
// and degrade to no-ops otherwise.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}
