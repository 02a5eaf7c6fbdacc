package otelcol

import (
	"context"

	"taskplane/pkg/config"
	"taskplane/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		exporters.ProvideGrpc,
		ProvideTrace,
	),
	fx.Invoke(Register),
)

func ProvideTrace(cfg *config.Config, exporter trace.SpanExporter) *trace.TracerProvider {
	return trace.NewTracerProvider(
		trace.WithResource(resource.Default()),
		trace.WithBatcher(exporter),
	)
}

func Register(lc fx.Lifecycle, tp *trace.TracerProvider) {
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}
