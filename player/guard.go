package player

import (
	"context"
	gosync "sync"

	"github.com/cimena/cinecast/internal/log"
)

// Guard wraps a Controller and owns the failure policy: every call is
// panic-recovered and error-swallowed, mute/unmute fall back to SetVolume,
// and Release runs at most once with Destroy falling back to Stop.
type Guard struct {
	ctrl        Controller
	logger      *log.Logger
	releaseOnce gosync.Once
}

func NewGuard(ctrl Controller, logger *log.Logger) *Guard {
	return &Guard{
		ctrl:   ctrl,
		logger: logger.Module("guard"),
	}
}

func (g *Guard) LoadByID(videoID string) {
	g.call("loadById", func() error { return g.ctrl.LoadByID(videoID) })
}

func (g *Guard) Mute() {
	if !g.call("mute", g.ctrl.Mute) {
		g.call("setVolume", func() error { return g.ctrl.SetVolume(0) })
	}
}

func (g *Guard) Unmute() {
	if !g.call("unmute", g.ctrl.Unmute) {
		g.call("setVolume", func() error { return g.ctrl.SetVolume(100) })
	}
}

func (g *Guard) SetVolume(percent int) {
	g.call("setVolume", func() error { return g.ctrl.SetVolume(percent) })
}

// Release tears the player down. Safe to call repeatedly; only the first
// call acts.
func (g *Guard) Release() {
	g.releaseOnce.Do(func() {
		if g.call("destroy", g.ctrl.Destroy) {
			return
		}
		if s, ok := g.ctrl.(Stopper); ok {
			g.call("stop", s.Stop)
		}
	})
}

func (g *Guard) call(op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			commandFailures.Add(context.Background(), 1)
			g.logger.Warn("Player call panicked",
				log.String("op", op),
				log.Any("panic", r))
			ok = false
		}
	}()

	if err := fn(); err != nil {
		commandFailures.Add(context.Background(), 1)
		g.logger.Warn("Player call failed",
			log.String("op", op),
			log.Error(err))
		return false
	}
	return true
}
