package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "splango"
	serviceVersion = "1.0.0"
)

// Exporter pushes assignment and conversion counters to an OTEL Collector.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	enrollmentsTotal metric.Int64Counter
	goalsTotal       metric.Int64Counter
	mergesTotal      metric.Int64Counter
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return newExporter(provider)
}

func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(serviceName)

	enrollmentsTotal, err := meter.Int64Counter(
		"splango_enrollments_total",
		metric.WithDescription("Enrollments created, by experiment and variant"),
		metric.WithUnit("{enrollment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enrollments counter: %w", err)
	}

	goalsTotal, err := meter.Int64Counter(
		"splango_goal_records_total",
		metric.WithDescription("Goal records created, by goal"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating goal records counter: %w", err)
	}

	mergesTotal, err := meter.Int64Counter(
		"splango_identity_merges_total",
		metric.WithDescription("Identity reconciliations that changed the session subject"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating merges counter: %w", err)
	}

	return &Exporter{
		provider:         provider,
		enrollmentsTotal: enrollmentsTotal,
		goalsTotal:       goalsTotal,
		mergesTotal:      mergesTotal,
	}, nil
}

func (e *Exporter) RecordEnrollment(ctx context.Context, experiment, variant string) {
	e.enrollmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment", experiment),
		attribute.String("variant", variant),
	))
}

func (e *Exporter) RecordGoal(ctx context.Context, goal string) {
	e.goalsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("goal", goal)))
}

func (e *Exporter) RecordMerge(ctx context.Context, action string) {
	e.mergesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
