package viewer

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/cimena/cinecast/internal/otel"
)

var (
	sessionsObserved  metric.Int64Counter
	playersAcquired   metric.Int64Counter
	videosLoaded      metric.Int64Counter
	playlistEndings   metric.Int64Counter
	presenceRefreshes metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("viewer", intotel.PrefixViewer)

	f.Int64Counter(&sessionsObserved, "sessions.observed",
		metric.WithDescription("Total live transitions observed"))

	f.Int64Counter(&playersAcquired, "players.acquired",
		metric.WithDescription("Total player acquisitions"))

	f.Int64Counter(&videosLoaded, "videos.loaded",
		metric.WithDescription("Total videos loaded into the player"))

	f.Int64Counter(&playlistEndings, "playlist.endings",
		metric.WithDescription("Total end-of-playlist events"))

	f.Int64Counter(&presenceRefreshes, "presence.refreshes",
		metric.WithDescription("Total presence records written"))
}
