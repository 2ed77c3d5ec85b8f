package otel

// Metric prefixes per component; each package defines its own metric names
// under one of these.
const (
	PrefixBroadcast = "broadcast"
	PrefixViewer    = "viewer"
	PrefixPlaylist  = "playlist"
	PrefixPlayer    = "player"
	PrefixStore     = "statestore"
)
