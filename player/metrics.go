package player

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/cimena/cinecast/internal/otel"
)

var (
	commandFailures metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("player", intotel.PrefixPlayer)

	f.Int64Counter(&commandFailures, "command.failures",
		metric.WithDescription("Total player commands that errored or panicked"))
}
