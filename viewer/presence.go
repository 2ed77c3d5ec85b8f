package viewer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/state"
	"github.com/cimena/cinecast/statestore"
)

const presenceRefreshInterval = 15 * time.Second

// Presence keeps this viewer's liveness record fresh. The record is bound to
// the store session, so it disappears on its own when the connection drops;
// the broadcaster reaps it earlier if refreshes stop while connected.
type Presence struct {
	store    statestore.Store
	clock    clockwork.Clock
	viewerID string
	logger   *log.Logger
}

func NewPresence(store statestore.Store, clock clockwork.Clock, logger *log.Logger) *Presence {
	return &Presence{
		store:    store,
		clock:    clock,
		viewerID: uuid.NewString(),
		logger:   logger.Module("presence"),
	}
}

func (p *Presence) ViewerID() string {
	return p.viewerID
}

// Run writes the presence record immediately and refreshes it on a fixed
// interval until ctx is cancelled. Write failures are logged and retried on
// the next tick.
func (p *Presence) Run(ctx context.Context) error {
	if err := p.refresh(ctx); err != nil {
		p.logger.Warn("Fail to write presence record", log.Error(err))
	}

	ticker := p.clock.NewTicker(presenceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := p.refresh(ctx); err != nil {
				p.logger.Warn("Fail to refresh presence record", log.Error(err))
			}
		}
	}
}

func (p *Presence) refresh(ctx context.Context) error {
	rec := state.ViewerPresence{LastSeen: state.Millis(p.clock.Now())}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := p.store.Put(ctx, statestore.PrefixViewers+p.viewerID, data, statestore.WithSessionLease()); err != nil {
		return err
	}
	presenceRefreshes.Add(ctx, 1)
	return nil
}
