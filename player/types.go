// Package player defines the capability surface for driving an embedded
// video player. The session logic never talks to a player directly; it goes
// through a Guard so playback failures cannot take the session down.
package player

import "context"

// Controller drives one player instance.
type Controller interface {
	LoadByID(videoID string) error
	Mute() error
	Unmute() error
	SetVolume(percent int) error
	Destroy() error
}

// Stopper is implemented by controllers that support stopping playback
// without tearing the player down. Detected by interface assertion.
type Stopper interface {
	Stop() error
}

// Events are callbacks delivered by the player implementation.
type Events struct {
	OnReady func()
	OnEnded func()
}

// Factory hands out a controller on demand. Acquisition can fail (no player
// surface attached yet); callers retry on the next state change.
type Factory interface {
	Acquire(ctx context.Context, events Events) (Controller, error)
}
