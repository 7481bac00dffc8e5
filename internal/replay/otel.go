package replay

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/vortexreplay/recorder/internal/replay"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
