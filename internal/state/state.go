// Package state defines the JSON records exchanged through the shared store.
// Field names are wire contract; timestamps are epoch milliseconds.
package state

import "time"

// BroadcasterPresence lives at signaling/broadcaster. Started stays false
// between the claim and the moment the session is fully online.
type BroadcasterPresence struct {
	ID       string `json:"id"`
	Started  bool   `json:"started"`
	LastPing int64  `json:"lastPing"`
}

// IsFresh reports whether the presence heartbeat is recent enough to treat
// the broadcaster as alive.
func (p *BroadcasterPresence) IsFresh(now time.Time, threshold time.Duration) bool {
	if p == nil || p.LastPing == 0 {
		return false
	}
	return now.UnixMilli()-p.LastPing <= threshold.Milliseconds()
}

// SessionOnline lives at livestreams/online. Its existence, not its content,
// is the live signal viewers react to.
type SessionOnline struct {
	Started       bool   `json:"started"`
	StartedAt     int64  `json:"startedAt"`
	BroadcasterID string `json:"broadcasterId"`
}

// PlaylistLink lives under livestreams/links/<key>.
type PlaylistLink struct {
	URL     string `json:"url"`
	VideoID string `json:"videoId"`
	AddedAt int64  `json:"addedAt"`
}

// ViewerPresence lives under signaling/viewers/<viewerId>.
type ViewerPresence struct {
	LastSeen int64 `json:"lastSeen"`
}

// IsStale reports whether the viewer stopped refreshing long enough ago to
// be reaped.
func (v *ViewerPresence) IsStale(now time.Time, threshold time.Duration) bool {
	if v == nil || v.LastSeen == 0 {
		return true
	}
	return now.UnixMilli()-v.LastSeen > threshold.Milliseconds()
}

// Millis converts a time to the wire representation.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts a wire timestamp back to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
