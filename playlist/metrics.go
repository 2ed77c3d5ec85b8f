package playlist

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/cimena/cinecast/internal/otel"
)

var (
	linksAdded    metric.Int64Counter
	linksRemoved  metric.Int64Counter
	linksRejected metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("playlist", intotel.PrefixPlaylist)

	f.Int64Counter(&linksAdded, "links.added",
		metric.WithDescription("Total links added to the playlist"))

	f.Int64Counter(&linksRemoved, "links.removed",
		metric.WithDescription("Total links removed from the playlist"))

	f.Int64Counter(&linksRejected, "links.rejected",
		metric.WithDescription("Total link inputs rejected as unparseable"))
}
