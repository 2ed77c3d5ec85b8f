package statestore

// Wire contract with the shared store. These paths are compatibility
// surface; do not rename.
const (
	// PathBroadcaster holds the single BroadcasterPresence record.
	PathBroadcaster = "signaling/broadcaster"

	// PrefixViewers is the per-viewer presence subtree.
	PrefixViewers = "signaling/viewers/"

	// PathScratch is only used to mint ids (push then delete).
	PathScratch = "signaling/temp"

	// PrefixLinks is the playlist subtree; key order is insertion order.
	PrefixLinks = "livestreams/links/"

	// PathOnline is the existence-based live signal viewers watch.
	PathOnline = "livestreams/online"

	// PrefixLivestreams covers both the playlist and the online flag, so a
	// viewer needs a single watch.
	PrefixLivestreams = "livestreams/"

	// PathBroadcasterMessages is reserved for broadcaster-to-viewer
	// messaging; it is only cleared on stop today.
	PathBroadcasterMessages = "messages/broadcasterToViewers"
)
