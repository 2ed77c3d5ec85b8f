package broadcast

import "time"

// Protocol timing. These are wire contract with other clients of the same
// store; changing them breaks mixed deployments.
const (
	// StaleThreshold is the maximum presence age before another
	// broadcaster may reclaim the slot.
	StaleThreshold = 60 * time.Second

	// HeartbeatInterval refreshes lastPing and runs the reap pass.
	HeartbeatInterval = 30 * time.Second

	// ViewerStaleThreshold reaps viewers that stopped refreshing.
	ViewerStaleThreshold = 40 * time.Second

	// startStopCooldown debounces the start/stop toggle. UX guard only.
	startStopCooldown = 6 * time.Second

	// elapsedTick drives the presentational session timer.
	elapsedTick = time.Second
)
