package instrumentation

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const attrDeploymentEnvironment = "deployment.environment"

// NewTracerProvider builds an SDK tracer provider for the configured
// exporter. It returns nil when tracing is disabled.
func NewTracerProvider(ctx context.Context, cfg *config.Config, w io.Writer) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Tracing.Exporter {
	case "", config.TracingExporterNone:
		return nil, nil
	case config.TracingExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Tracing.Exporter)
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "oauth-proxy"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String(attrDeploymentEnvironment, cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

// Setup installs the configured tracer provider globally. The returned
// shutdown flushes pending spans; it is a no-op when tracing is disabled.
func Setup(ctx context.Context, cfg *config.Config, w io.Writer) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	tp, err := NewTracerProvider(ctx, cfg, w)
	if err != nil {
		return noop, err
	}
	if tp == nil {
		return noop, nil
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	logger.Info("Tracing enabled", zap.String("exporter", cfg.Tracing.Exporter))

	return tp.Shutdown, nil
}

func registerTracing(lc fx.Lifecycle, cfg *config.Config) error {
	shutdown, err := Setup(context.Background(), cfg, os.Stdout)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: shutdown,
	})
	return nil
}

// Module installs tracing for the application lifetime
var Module = fx.Module("instrumentation",
	fx.Invoke(registerTracing),
)
