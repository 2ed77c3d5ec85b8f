package broadcast

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/state"
	"github.com/cimena/cinecast/statestore"
)

// Monitor is the broadcaster-side liveness pass. It runs at the tail of
// every heartbeat tick: viewers that stopped refreshing their presence get
// their record deleted and their local peer handle torn down. Advisory
// cleanup only; the session stays live regardless.
type Monitor struct {
	store statestore.Store
	peers *PeerTable
	clock clockwork.Clock

	// trackPeer builds the local handle for a newly observed viewer.
	// Nil means peers are tracked with no attached resource.
	trackPeer func(viewerID string) func()

	logger *log.Logger
}

func NewMonitor(store statestore.Store, peers *PeerTable, clock clockwork.Clock, trackPeer func(viewerID string) func(), logger *log.Logger) *Monitor {
	return &Monitor{
		store:     store,
		peers:     peers,
		clock:     clock,
		trackPeer: trackPeer,
		logger:    logger.Module("liveness"),
	}
}

// Reap syncs the peer table with the viewer presence subtree and removes
// stale records. Returns how many viewers were reaped.
func (m *Monitor) Reap(ctx context.Context) int {
	kvs, err := m.store.List(ctx, statestore.PrefixViewers)
	if err != nil {
		m.logger.Warn("Fail to list viewer records", log.Error(err))
		return 0
	}

	now := m.clock.Now()
	reaped := 0
	live := make(map[string]struct{}, len(kvs))

	for _, kv := range kvs {
		viewerID := strings.TrimPrefix(kv.Key, statestore.PrefixViewers)

		var rec state.ViewerPresence
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			m.logger.Warn("Malformed viewer record, reaping",
				log.String("viewerId", viewerID),
				log.Error(err))
			rec = state.ViewerPresence{}
		}

		if rec.IsStale(now, ViewerStaleThreshold) {
			// conditional delete: a refresh that raced us wins
			if ok, err := m.store.DeleteIfRevision(ctx, kv.Key, kv.ModRev); err != nil {
				m.logger.Warn("Fail to reap viewer record",
					log.String("viewerId", viewerID),
					log.Error(err))
				continue
			} else if !ok {
				live[viewerID] = struct{}{}
				continue
			}

			m.peers.Close(viewerID)
			viewersReaped.Add(ctx, 1)
			reaped++
			m.logger.Info("Reaped stale viewer", log.String("viewerId", viewerID))
			continue
		}

		live[viewerID] = struct{}{}
		if !m.peers.Has(viewerID) {
			var closeFn func()
			if m.trackPeer != nil {
				closeFn = m.trackPeer(viewerID)
			}
			m.peers.Track(viewerID, closeFn)
		}
	}

	// handles whose records vanished out-of-band (disconnect) go too
	for _, id := range m.peers.IDs() {
		if _, ok := live[id]; !ok {
			m.peers.Close(id)
		}
	}

	return reaped
}
