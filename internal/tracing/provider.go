// Package tracing exports one client span per ping and optionally propagates
// W3C trace context to the target.
package tracing

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/crankping/internal/config"
)

const defaultCommand = "crankping"

// Run identifies the ping run every exported span belongs to.
type Run struct {
	ID          string // run ULID, exported as service.instance.id
	Command     string // binary name, the default service name
	Target      string
	Workers     int
	Identifiers int
}

// Attributes returns the resource attributes describing r.
func (r Run) Attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if r.ID != "" {
		attrs = append(attrs,
			semconv.ServiceInstanceID(r.ID),
			attribute.String("crankping.run_id", r.ID),
		)
	}
	if host := targetHost(r.Target); host != "" {
		attrs = append(attrs, attribute.String("crankping.target.host", host))
	}
	attrs = append(attrs,
		attribute.Int("crankping.workers", r.Workers),
		attribute.Int("crankping.identifiers", r.Identifiers),
	)
	return attrs
}

func (r Run) serviceName(cfg config.TracingConfig) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	if name := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); name != "" {
		return name
	}
	if r.Command != "" {
		return r.Command
	}
	return defaultCommand
}

func targetHost(target string) string {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return ""
	}
	return u.Host
}

// Option customizes Init.
type Option func(*initOptions)

type initOptions struct {
	exporter sdktrace.SpanExporter
}

// WithExporter exports spans synchronously to exp instead of dialing an OTLP
// endpoint. Tracing is enabled regardless of the configured endpoint.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *initOptions) {
		o.exporter = exp
	}
}

// Provider owns the tracer used by the ping workers.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
	resource  *resource.Resource
}

// Init builds a provider for run. Without an endpoint (or WithExporter) the
// provider hands out a no-op tracer but still honors an explicit propagate.
func Init(ctx context.Context, cfg config.TracingConfig, run Run, opts ...Option) (*Provider, error) {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if endpoint == "" && o.exporter == nil {
		return &Provider{propagate: cfg.ShouldPropagate()}, nil
	}

	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{semconv.ServiceName(run.serviceName(cfg))}, run.Attributes()...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	var processor sdktrace.TracerProviderOption
	if o.exporter != nil {
		processor = sdktrace.WithSyncer(o.exporter)
	} else {
		exporter, err := newExporter(ctx, cfg, endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
		processor = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	propagate := cfg.ShouldPropagate()
	if o.exporter != nil && cfg.Propagate == nil {
		propagate = true
	}

	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(run.serviceName(cfg)),
		propagate: propagate,
		resource:  res,
	}, nil
}

// Tracer returns the run's tracer, or a no-op tracer when export is off.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(defaultCommand)
	}
	return p.tracer
}

// Enabled reports whether spans leave the process.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// ShouldPropagate reports whether requests carry a traceparent header.
func (p *Provider) ShouldPropagate() bool {
	if p == nil {
		return false
	}
	return p.propagate
}

// Resource returns the resource attached to exported spans, nil when disabled.
func (p *Provider) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.resource
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newSampler(rate float64) (sdktrace.Sampler, error) {
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		return sdktrace.NeverSample(), nil
	case rate < 1:
		return sdktrace.TraceIDRatioBased(rate), nil
	default:
		return sdktrace.AlwaysSample(), nil
	}
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol)); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
