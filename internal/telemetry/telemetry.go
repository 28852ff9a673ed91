package telemetry

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the default resource service name.
const ServiceName = "commit-ingest"

// Mode selects how much tracing the process emits.
type Mode string

const (
	// ModeOff disables spans entirely.
	ModeOff Mode = "off"
	// ModeErrors keeps a thin sample so failing deliveries still leave traces.
	ModeErrors Mode = "errors"
	// ModeSampled samples request spans by ratio.
	ModeSampled Mode = "sampled"
	// ModeDetailed records every request plus spans around GitHub and store calls.
	ModeDetailed Mode = "detailed"
)

const minErrorsRatio = 0.01

var currentMode atomic.Pointer[Mode]

// ParseMode normalizes a configured mode. Unknown values fall back to ModeSampled.
func ParseMode(raw string) Mode {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeOff, ModeErrors, ModeDetailed:
		return mode
	default:
		return ModeSampled
	}
}

// CurrentMode reports the mode installed by the last Setup. It is ModeOff before Setup.
func CurrentMode() Mode {
	if mode := currentMode.Load(); mode != nil {
		return *mode
	}
	return ModeOff
}

// ShouldTraceDependencies reports if detailed dependency spans should be emitted.
func ShouldTraceDependencies() bool {
	return CurrentMode() == ModeDetailed
}

// Config configures OpenTelemetry tracing setup.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	TraceMode        string
	TraceSampleRatio float64
	// ExporterEndpoint is an OTLP/HTTP base URL. Empty means no exporter.
	ExporterEndpoint string
	// ExporterHeaders is a comma separated key=value list.
	ExporterHeaders string
}

// Runtime owns the tracer provider installed by Setup.
type Runtime struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a global tracer provider. A disabled config still installs a
// provider so spans are valid, but it never samples and exports nothing.
func Setup(ctx context.Context, cfg Config) (*Runtime, error) {
	mode := ParseMode(cfg.TraceMode)
	if !cfg.Enabled {
		mode = ModeOff
	}

	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = ServiceName
	}
	version := strings.TrimSpace(cfg.ServiceVersion)
	if version == "" {
		version = buildVersion()
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, err
	}

	providerOptions := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(samplerFor(mode, cfg.TraceSampleRatio)),
		sdktrace.WithResource(res),
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.ExporterEndpoint), "/"); endpoint != "" && mode != ModeOff {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint+"/v1/traces"),
			otlptracehttp.WithHeaders(parseHeaders(cfg.ExporterHeaders)),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		providerOptions = append(providerOptions, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(providerOptions...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	currentMode.Store(&mode)
	return &Runtime{provider: provider}, nil
}

// TracerProvider returns the installed provider.
func (r *Runtime) TracerProvider() *sdktrace.TracerProvider {
	if r == nil {
		return nil
	}
	return r.provider
}

// Shutdown flushes and stops the provider.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

func samplerFor(mode Mode, ratio float64) sdktrace.Sampler {
	ratio = min(max(ratio, 0), 1)
	switch mode {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	case ModeErrors:
		ratio = max(ratio, minErrorsRatio)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// StartDependencySpan starts a span for a pipeline dependency call when detailed
// tracing is on. Otherwise it returns ctx unchanged and a non-recording span.
func StartDependencySpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !ShouldTraceDependencies() {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return otel.Tracer(ServiceName+"/"+component).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records the outcome of a span and ends it.
func EndSpan(span trace.Span, err error, okDescription string) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, okDescription)
	}
	span.End()
}
