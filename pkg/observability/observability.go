// Package observability exports ingestion metrics and traces over OTLP.
// When no endpoint is configured the instruments come from the global
// no-op providers, so call sites never branch on whether telemetry is
// on.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "cstorehq.backoffice.ingest"

// Config configures the metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // empty disables export
	Insecure       bool
}

// Provider owns the meter and tracer providers and the ingest
// instruments.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	log            *slog.Logger

	filesProcessed metric.Int64Counter
	filesFailed    metric.Int64Counter
	filesSkipped   metric.Int64Counter
	processingTime metric.Float64Histogram
	syncCycles     metric.Int64Counter
}

// New builds a provider. With an empty endpoint it records into the
// global (no-op by default) meter and export stays off.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	p := &Provider{log: log.With("component", "observability")}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "backoffice-ingest"
	}

	if cfg.OTLPEndpoint != "" {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("build resource: %w", err)
		}

		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("build metric exporter: %w", err)
		}

		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(15*time.Second),
			)),
		)
		otel.SetMeterProvider(p.meterProvider)

		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		}
		spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("build span exporter: %w", err)
		}
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spanExporter),
		)
		otel.SetTracerProvider(p.tracerProvider)
		p.log.Info("telemetry export enabled", "endpoint", cfg.OTLPEndpoint)
	}

	meter := otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.initInstruments(meter); err != nil {
		return nil, err
	}
	p.tracer = otel.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(cfg.ServiceVersion))
	return p, nil
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error
	p.filesProcessed, err = meter.Int64Counter("ingest.files.processed",
		metric.WithDescription("Files processed to SUCCESS or PARTIAL"),
		metric.WithUnit("{file}"))
	if err != nil {
		return err
	}
	p.filesFailed, err = meter.Int64Counter("ingest.files.failed",
		metric.WithDescription("Files routed to the error folder"),
		metric.WithUnit("{file}"))
	if err != nil {
		return err
	}
	p.filesSkipped, err = meter.Int64Counter("ingest.files.skipped",
		metric.WithDescription("Duplicate files skipped by content hash"),
		metric.WithUnit("{file}"))
	if err != nil {
		return err
	}
	p.processingTime, err = meter.Float64Histogram("ingest.processing.duration",
		metric.WithDescription("Per-file processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0))
	if err != nil {
		return err
	}
	p.syncCycles, err = meter.Int64Counter("ingest.sync.cycles",
		metric.WithDescription("Completed sync cycles by status"),
		metric.WithUnit("{cycle}"))
	return err
}

// StartFileSpan opens a span covering one file's sweep. The caller ends
// the span once the file is dispositioned.
func (p *Provider) StartFileSpan(ctx context.Context, storeID, fileName string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "ingest.file", trace.WithAttributes(
		attribute.String("store.id", storeID),
		attribute.String("file.name", fileName),
	))
}

// RecordFile records one swept file's outcome.
func (p *Provider) RecordFile(ctx context.Context, storeID, posType, status string, duplicate bool, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("store.id", storeID),
		attribute.String("pos.type", posType),
		attribute.String("file.status", status),
	)
	switch {
	case duplicate:
		p.filesSkipped.Add(ctx, 1, attrs)
	case status == "FAILED":
		p.filesFailed.Add(ctx, 1, attrs)
	default:
		p.filesProcessed.Add(ctx, 1, attrs)
	}
	p.processingTime.Record(ctx, seconds, attrs)
}

// RecordSyncCycle records one completed sync cycle.
func (p *Provider) RecordSyncCycle(ctx context.Context, storeID, status string) {
	p.syncCycles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.id", storeID),
		attribute.String("sync.status", status),
	))
}

// Shutdown flushes pending exports. Safe on a provider with export off.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
