package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupOptions configures the global OpenTelemetry providers installed by
// Setup. The zero value exports metrics and traces to stdout, useful when
// debugging an embedding application locally.
type SetupOptions struct {
	// OTLPMetricsEndpoint, when non-empty, exports metrics over OTLP/HTTP
	// to the given host:port instead of stdout.
	OTLPMetricsEndpoint string
	// MetricInterval is the periodic-reader export interval; defaults to
	// one minute.
	MetricInterval time.Duration
}

// Setup installs global MeterProvider and TracerProvider instances so the
// SDK's instruments and spans (Metrics, StartSequenceSpan, StartActionSpan)
// are actually exported. Embedding applications that already run their own
// otel SDK can skip this entirely; the SDK's instrumentation only ever
// touches the global providers. The returned function flushes and shuts
// both providers down.
func Setup(ctx context.Context, opts SetupOptions) (func(context.Context) error, error) {
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = time.Minute
	}

	var metricExporter sdkmetric.Exporter
	var err error
	if opts.OTLPMetricsEndpoint != "" {
		metricExporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(opts.OTLPMetricsEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
	} else {
		metricExporter, err = stdoutmetric.New()
	}
	if err != nil {
		return nil, err
	}

	traceExporter, err := stdouttrace.New()
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(interval))),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
	)

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}
	return shutdown, nil
}
