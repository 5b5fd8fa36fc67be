package observability

import (
	"github.com/astralhq/keychain/internal/observability/metrics"
	"github.com/astralhq/keychain/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		metrics.New,
		tracing.NewProvider,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}
