package observability

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/labelscan/portal/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds telemetry configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Enabled        bool

	// Describe the deployment on every exported span and metric
	VerificationHost string
	MaxImages        int
	PollTimeout      time.Duration
}

// Telemetry holds the telemetry providers
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	config         Config
}

// NewConfig derives telemetry settings from the portal configuration
func NewConfig(cfg config.Config, version string) Config {
	host := cfg.APIURL
	if u, err := url.Parse(cfg.APIURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		Environment:      cfg.Telemetry.Environment,
		OTLPEndpoint:     cfg.Telemetry.Endpoint,
		Enabled:          cfg.Telemetry.Enabled,
		VerificationHost: host,
		MaxImages:        cfg.Upload.MaxImages,
		PollTimeout:      cfg.Polling.Timeout(),
	}
}

// Attributes returns the resource attributes of the portal
func (c Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		attribute.String("deployment.environment", c.Environment),
		attribute.String("labelscan.verification.host", c.VerificationHost),
		attribute.Int("labelscan.upload.max_images", c.MaxImages),
		attribute.Float64("labelscan.polling.timeout_seconds", c.PollTimeout.Seconds()),
	}
}

// Initialize sets up OpenTelemetry with tracing and metrics
func Initialize(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		Info("Telemetry disabled (set OTEL_ENABLED=true to enable)")
		return &Telemetry{config: cfg}, nil
	}

	Infof("Exporting %s telemetry to %s", cfg.ServiceName, cfg.OTLPEndpoint)

	// Empty schema URL avoids conflicts with the SDK's default schema version
	res, err := resource.New(ctx,
		resource.WithAttributes(cfg.Attributes()...),
		resource.WithHost(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider, err := initTracer(ctx, cfg.OTLPEndpoint, res)
	if err != nil {
		Warnf("Failed to initialize tracer, continuing without tracing: %v", err)
	} else {
		otel.SetTracerProvider(tracerProvider)
	}

	meterProvider, err := initMeter(ctx, cfg.OTLPEndpoint, res)
	if err != nil {
		Warnf("Failed to initialize meter, continuing without metrics: %v", err)
	} else {
		otel.SetMeterProvider(meterProvider)
	}

	// Trace context is injected into outgoing verification service calls
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		config:         cfg,
	}, nil
}

func initTracer(ctx context.Context, endpoint string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return tp, nil
}

func initMeter(ctx context.Context, endpoint string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(30*time.Second),
		)),
		sdkmetric.WithResource(res),
	)

	return mp, nil
}

// Shutdown gracefully shuts down telemetry providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}

	var errs []error

	if t.TracerProvider != nil {
		if err := t.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if t.MeterProvider != nil {
		if err := t.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Enabled reports whether exporters were configured
func (t *Telemetry) Enabled() bool {
	return t.config.Enabled
}
