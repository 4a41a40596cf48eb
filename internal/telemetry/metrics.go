package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the registered instruments.
type Metrics struct {
	CommandCounter  metric.Int64Counter
	CommandDuration metric.Float64Histogram
}

var (
	meterMu sync.RWMutex
	metrics *Metrics
)

// InitMetricsProvider installs the global meter provider. With telemetry
// disabled or no endpoint, instruments are registered against the noop
// provider and recording is free.
func InitMetricsProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	meterMu.Lock()
	defer meterMu.Unlock()

	shutdown := func(context.Context) error { return nil }
	provider := otel.GetMeterProvider()

	if cfg.Enabled && cfg.Endpoint != "" {
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource for metrics: %w", err)
		}

		exporterOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
		)
		otel.SetMeterProvider(mp)
		provider = mp
		shutdown = mp.Shutdown
	}

	m, err := newMetrics(provider.Meter("github.com/felixgeelhaar/hradmin"))
	if err != nil {
		return nil, err
	}
	metrics = m
	return shutdown, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	m.CommandCounter, err = meter.Int64Counter(
		"hradmin.command.invocations",
		metric.WithDescription("Number of command invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register command counter: %w", err)
	}
	m.CommandDuration, err = meter.Float64Histogram(
		"hradmin.command.duration",
		metric.WithDescription("Command execution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("register command histogram: %w", err)
	}
	return &m, nil
}

// RecordCommand records one finished command. status is "ok" or an error category.
func RecordCommand(ctx context.Context, command, status string, elapsed time.Duration) {
	meterMu.RLock()
	m := metrics
	meterMu.RUnlock()
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	)
	m.CommandCounter.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, elapsed.Seconds(), attrs)
}
