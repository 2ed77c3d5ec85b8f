package broadcast

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/cimena/cinecast/internal/otel"
)

var (
	sessionsStarted metric.Int64Counter
	sessionsStopped metric.Int64Counter
	startsRejected  metric.Int64Counter
	heartbeats      metric.Int64Counter
	viewersReaped   metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("broadcast", intotel.PrefixBroadcast)

	f.Int64Counter(&sessionsStarted, "sessions.started",
		metric.WithDescription("Total sessions brought online"))

	f.Int64Counter(&sessionsStopped, "sessions.stopped",
		metric.WithDescription("Total sessions stopped"))

	f.Int64Counter(&startsRejected, "sessions.rejected",
		metric.WithDescription("Total start attempts rejected (exclusivity or empty playlist)"))

	f.Int64Counter(&heartbeats, "heartbeats",
		metric.WithDescription("Total presence heartbeats written"))

	f.Int64Counter(&viewersReaped, "viewers.reaped",
		metric.WithDescription("Total stale viewer records reaped"))
}
