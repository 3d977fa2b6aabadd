package mosaico

import (
	"context"

	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// TelemetryOptions configures SetupTelemetry; the zero value exports to
// stdout.
type TelemetryOptions = telemetry.SetupOptions

// SetupTelemetry installs global OpenTelemetry providers so the SDK's
// write/read pipeline metrics and transaction spans are exported. Optional:
// applications running their own otel SDK already receive them through the
// global providers. The returned function flushes and shuts down.
func SetupTelemetry(ctx context.Context, opts TelemetryOptions) (func(context.Context) error, error) {
	return telemetry.Setup(ctx, opts)
}
