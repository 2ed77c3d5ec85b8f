package broadcast

import "github.com/cimena/cinecast/internal/errors"

const (
	// ErrAlreadyBroadcasting means another live broadcaster holds the
	// presence record.
	ErrAlreadyBroadcasting errors.Code = "already broadcasting"

	// ErrSessionActive means this process already runs a session.
	ErrSessionActive errors.Code = "session already active"

	// ErrCooldown debounces rapid start/stop toggles.
	ErrCooldown errors.Code = "cooldown active"

	ErrEmptyPlaylist    errors.Code = "empty playlist"
	ErrStoreUnavailable errors.Code = "store unavailable"
)
