// Package telemetry wraps the OpenTelemetry trace and metric APIs behind a
// value that is passed explicitly into the components that instrument
// themselves. There is no process-wide singleton and no init ordering
// contract: components that are handed NewNoop() behave identically, minus
// the exported data.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "fileferry"

// Telemetry carries the tracer and the transfer metrics shared by senders
// and connection handlers. Counter values are mirrored in atomics so the
// process can read them back without a metric reader round-trip; many
// handlers increment them concurrently.
type Telemetry struct {
	tracer          trace.Tracer
	filesSent       metric.Int64Counter
	filesReceived   metric.Int64Counter
	transferLatency metric.Float64Histogram

	sentCount     atomic.Int64
	receivedCount atomic.Int64

	shutdown func(context.Context) error
}

// NewNoop returns a Telemetry that records nothing externally. The atomic
// counters still work, so callers can observe transfer counts in-process.
func NewNoop() *Telemetry {
	t, _ := build(tracenoop.NewTracerProvider().Tracer(instrumentationName), metricnoop.NewMeterProvider().Meter(instrumentationName))
	return t
}

// New configures tracing and metrics with stdout exporters. sampleRatio is
// clamped to [0.1, 1.0]; 1.0 samples every span.
func New(ctx context.Context, serviceName string, sampleRatio float64) (*Telemetry, error) {
	if sampleRatio > 1.0 {
		sampleRatio = 1.0
	} else if sampleRatio <= 0.0 {
		sampleRatio = 0.1
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	spanExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if sampleRatio < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(sampleRatio)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	t, err := build(tracerProvider.Tracer(instrumentationName), meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}

	t.shutdown = func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}
	return t, nil
}

func build(tracer trace.Tracer, meter metric.Meter) (*Telemetry, error) {
	filesSent, err := meter.Int64Counter("files_sent_total",
		metric.WithDescription("Number of files successfully sent"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create files_sent counter: %w", err)
	}

	filesReceived, err := meter.Int64Counter("files_received_total",
		metric.WithDescription("Number of files successfully received"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create files_received counter: %w", err)
	}

	transferLatency, err := meter.Float64Histogram("file_transfer_latency_ms",
		metric.WithDescription("End-to-end file transfer latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer latency histogram: %w", err)
	}

	return &Telemetry{
		tracer:          tracer,
		filesSent:       filesSent,
		filesReceived:   filesReceived,
		transferLatency: transferLatency,
	}, nil
}

// StartSpan starts a named span with the given attributes.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// FileSent records one successfully sent file.
func (t *Telemetry) FileSent(ctx context.Context) {
	t.sentCount.Add(1)
	t.filesSent.Add(ctx, 1)
}

// FileReceived records one successfully received file.
func (t *Telemetry) FileReceived(ctx context.Context) {
	t.receivedCount.Add(1)
	t.filesReceived.Add(ctx, 1)
}

// RecordTransferLatency records the end-to-end duration of one file send.
func (t *Telemetry) RecordTransferLatency(ctx context.Context, d time.Duration) {
	t.transferLatency.Record(ctx, float64(d.Milliseconds()))
}

// FilesSent returns the in-process count of successfully sent files.
func (t *Telemetry) FilesSent() int64 { return t.sentCount.Load() }

// FilesReceived returns the in-process count of successfully received files.
func (t *Telemetry) FilesReceived() int64 { return t.receivedCount.Load() }

// Shutdown flushes and stops the exporters. It is a no-op for NewNoop.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}
