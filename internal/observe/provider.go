package observe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the process-wide telemetry installed by
// [InitProvider].
type ProviderConfig struct {
	// ServiceName defaults to "streamscribe".
	ServiceName    string
	ServiceVersion string

	// InstanceID tells replicas apart in shared dashboards. Defaults to the
	// host name.
	InstanceID string

	// SampleRatio is the fraction of root spans recorded. Values outside
	// (0, 1) record every span. Child spans follow their parent, so an
	// iteration is traced whenever the request that opened its stream is.
	SampleRatio float64

	// SpanExporter receives finished spans. When nil spans stay in process;
	// they still provide correlation ids for logs and responses.
	SpanExporter sdktrace.SpanExporter
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.ServiceName == "" {
		c.ServiceName = "streamscribe"
	}
	if c.InstanceID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.InstanceID = host
		} else {
			c.InstanceID = uuid.NewString()
		}
	}
	return c
}

func (c ProviderConfig) resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
			semconv.ServiceInstanceID(c.InstanceID),
		),
	)
}

func (c ProviderConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio > 0 && c.SampleRatio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// InitProvider registers global meter and tracer providers. Metrics are
// exposed through the Prometheus exporter so /metrics keeps working; spans
// go to cfg.SpanExporter when set.
//
// The returned function flushes and stops both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	cfg = cfg.withDefaults()
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
