package config

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewLogger builds the process-wide structured logger (SPEC_FULL.md
// §4.L): JSON to stdout. Passing a *Watcher's Level() (a live
// slog.LevelVar) lets a hot config reload raise or lower verbosity
// without rebuilding the logger; a plain slog.Level also works for
// callers (tests, one-off tools) that don't need hot reload.
func NewLogger(level slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewTracerProvider builds an SDK TracerProvider with no exporter
// registered and installs it as the global provider. No package in this
// repository starts spans against it (join and tick are not traced), and
// nothing is shipped anywhere, since no exporter is configured.
func NewTracerProvider(serviceName string) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer instance components should use to
// create spans, e.g. tracer.Start(ctx, "instance.join").
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ShutdownTracerProvider flushes and stops tp; safe to call with a
// context that's already past its deadline during emergency shutdown.
func ShutdownTracerProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
