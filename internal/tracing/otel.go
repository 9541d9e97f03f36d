package tracing

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sirforce/devops-mcp"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	// stdout is reserved for the MCP stdio transport, so spans go to stderr
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the tracer of the global provider. Before InitOTel runs,
// or when tracing is disabled, spans are no-ops.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// SpanKind represents the role of a span
type SpanKind string

// Span kinds for categorizing trace spans
const (
	SpanKindTool    SpanKind = "tool"
	SpanKindAPI     SpanKind = "api"
	SpanKindShaping SpanKind = "shaping"
)

// ToolSpan starts a new span for a tool execution
func ToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "mcp.tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mcp.tool.name", toolName),
			attribute.String("mcp.span.kind", string(SpanKindTool)),
			attribute.String("mcp.session.id", SessionID(ctx)),
		),
	)
}

// APISpan starts a new span for an Azure DevOps REST call
func APISpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "azdo.api."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("mcp.span.kind", string(SpanKindAPI)),
		),
	)
}

// ShapingSpan starts a span around response shaping of itemCount records
func ShapingSpan(ctx context.Context, itemCount int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "mcp.shape",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("shaping.items", itemCount),
			attribute.String("mcp.span.kind", string(SpanKindShaping)),
		),
	)
}

// AddToolAttributes adds scalar tool arguments to a span
func AddToolAttributes(span trace.Span, attrs map[string]interface{}) {
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String("mcp.tool.arg."+k, val))
		case int:
			span.SetAttributes(attribute.Int("mcp.tool.arg."+k, val))
		case float64:
			span.SetAttributes(attribute.Float64("mcp.tool.arg."+k, val))
		case bool:
			span.SetAttributes(attribute.Bool("mcp.tool.arg."+k, val))
		}
	}
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetShapingResult records the arbiter's decision on a span
func SetShapingResult(span trace.Span, mode string, estimatedBytes int) {
	span.SetAttributes(
		attribute.String("shaping.mode", mode),
		attribute.Int("shaping.estimated_bytes", estimatedBytes),
	)
}
