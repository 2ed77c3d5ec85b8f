package broadcast

import (
	intsync "github.com/cimena/cinecast/internal/sync"
)

// Peer is a broadcaster-local handle for one tracked viewer. The close
// function tears down whatever local resource the transport attached to the
// viewer; it runs at most once, on reap or on session stop.
type Peer struct {
	ViewerID string
	closeFn  func()
}

func (p *Peer) close() {
	if p.closeFn != nil {
		p.closeFn()
	}
}

// PeerTable maps viewer ids to local handles. Never persisted; rebuilt from
// viewer presence records every session.
type PeerTable struct {
	peers *intsync.Map[string, *Peer]
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: intsync.NewMap[string, *Peer]()}
}

// Track registers a handle for viewerID unless one already exists.
func (t *PeerTable) Track(viewerID string, closeFn func()) {
	if _, ok := t.peers.Load(viewerID); ok {
		return
	}
	t.peers.Store(viewerID, &Peer{ViewerID: viewerID, closeFn: closeFn})
}

// Close tears down and removes the handle for viewerID, if any.
func (t *PeerTable) Close(viewerID string) {
	if p, ok := t.peers.LoadAndDelete(viewerID); ok {
		p.close()
	}
}

// CloseAll drains the table, tearing every handle down.
func (t *PeerTable) CloseAll() {
	for _, p := range t.peers.Clear() {
		p.close()
	}
}

// Has reports whether viewerID is tracked.
func (t *PeerTable) Has(viewerID string) bool {
	_, ok := t.peers.Load(viewerID)
	return ok
}

// IDs returns the tracked viewer ids, unordered.
func (t *PeerTable) IDs() []string {
	ids := make([]string, 0, t.peers.Len())
	t.peers.Range(func(id string, _ *Peer) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func (t *PeerTable) Len() int {
	return t.peers.Len()
}
