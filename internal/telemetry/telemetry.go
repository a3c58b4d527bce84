package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theblitlabs/parity-monitor/internal/config"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const instrumentationName = "github.com/theblitlabs/parity-monitor"

// cycleDuration is nil only if the instrument could not be created.
var cycleDuration metric.Float64Histogram

// The global meter delegates to whatever provider InitTelemetry installs, so
// the instrument can be created before that happens.
func init() {
	h, err := newCycleDurationHistogram(otel.Meter(instrumentationName))
	if err != nil {
		log := logger.WithComponent("telemetry")
		log.Warn().Err(err).Msg("Cycle duration instrument disabled")
		return
	}
	cycleDuration = h
}

func newCycleDurationHistogram(meter metric.Meter) (metric.Float64Histogram, error) {
	return meter.Float64Histogram(
		"monitor.cycle.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of one sampling cycle"),
	)
}

// ObserveCycleDuration records how long a sample-wait-sample cycle took.
func ObserveCycleDuration(ctx context.Context, d time.Duration) {
	cycleDurationHistogram.Observe(d.Seconds())
	if cycleDuration != nil {
		cycleDuration.Record(ctx, d.Seconds())
	}
}

func noopShutdown(context.Context) error { return nil }

// InitTelemetry initializes OpenTelemetry with the OTLP exporter. A collector
// that cannot be reached is logged and the process continues without export.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	log := logger.WithComponent("telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collectorAddr := fmt.Sprintf("%s:%d", cfg.OTELCollector.Host, cfg.OTELCollector.Port)
	conn, err := grpc.DialContext(dialCtx, collectorAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Warn().Err(err).Str("collector", collectorAddr).Msg("OpenTelemetry collector unreachable, continuing without export")
		return noopShutdown, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create trace exporter")
		conn.Close()
		return noopShutdown, nil
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create metric exporter")
		_ = tracerProvider.Shutdown(ctx)
		conn.Close()
		return noopShutdown, nil
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(cfg.Metrics.Interval),
		)),
	)
	otel.SetMeterProvider(meterProvider)

	log.Info().Str("collector", collectorAddr).Msg("OpenTelemetry export enabled")

	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var errs []error
		if err := tracerProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		if err := meterProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close gRPC connection: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}
