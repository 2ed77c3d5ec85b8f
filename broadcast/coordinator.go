// Package broadcast owns the broadcaster side of the protocol: electing the
// single live broadcaster, keeping its presence fresh, and reaping stale
// viewers. All coordination happens through the shared store.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cimena/cinecast/internal/errors"
	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/state"
	"github.com/cimena/cinecast/notify"
	"github.com/cimena/cinecast/playlist"
	"github.com/cimena/cinecast/statestore"
)

// Connection is one row of the externally visible connections list.
type Connection struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

// Status is the coordinator's local view, for display.
type Status struct {
	Live          bool   `json:"live"`
	BroadcasterID string `json:"broadcasterId,omitempty"`
	StartedAt     int64  `json:"startedAt,omitempty"`
	Elapsed       string `json:"elapsed,omitempty"`
}

type CoordinatorConfig struct {
	Store    statestore.Store
	Registry *playlist.Registry
	Notifier notify.Notifier
	Clock    clockwork.Clock

	// TrackPeer builds the local handle for a newly observed viewer.
	// Optional; nil tracks peers without an attached resource.
	TrackPeer func(viewerID string) func()

	Logger *log.Logger
}

// Coordinator drives one session at a time. Exclusivity is enforced through
// the presence record: the claim is a conditional write against the revision
// we observed, so two racing reclaims cannot both win.
type Coordinator struct {
	store    statestore.Store
	registry *playlist.Registry
	notifier notify.Notifier
	clock    clockwork.Clock
	peers    *PeerTable
	monitor  *Monitor
	logger   *log.Logger

	mu             gosync.Mutex
	broadcasterID  string
	startedAt      time.Time
	cooldownUntil  time.Time
	elapsedDisplay string
	connections    []Connection
	cancelSession  context.CancelFunc
	sessionDone    chan struct{}
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger.Module("coordinator")
	peers := NewPeerTable()

	return &Coordinator{
		store:    cfg.Store,
		registry: cfg.Registry,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		peers:    peers,
		monitor:  NewMonitor(cfg.Store, peers, cfg.Clock, cfg.TrackPeer, logger),
		logger:   logger,
	}
}

// Start brings a session online. On success the online record and presence
// record are both in the store (lease-bound), the heartbeat is running, and
// viewers are already reacting to the online record.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	now := c.clock.Now()
	if c.broadcasterID != "" {
		c.mu.Unlock()
		return errors.New(ErrSessionActive, "start")
	}
	if now.Before(c.cooldownUntil) {
		c.mu.Unlock()
		return errors.New(ErrCooldown, "start")
	}
	c.cooldownUntil = now.Add(startStopCooldown)
	c.mu.Unlock()

	id, err := c.store.MintKey(ctx, statestore.PathScratch)
	if err != nil {
		c.notifier.Notify("Could not start the stream")
		return errors.Wrap(ErrStoreUnavailable, err, "mint broadcaster id")
	}

	if err := c.claimPresence(ctx, id); err != nil {
		if errors.Is(err, ErrAlreadyBroadcasting) {
			c.notifier.Notify("Someone else is already streaming")
		} else {
			c.notifier.Notify("Could not start the stream")
		}
		return err
	}

	items, err := c.registry.Items(ctx)
	if err != nil {
		c.rollbackClaim(ctx)
		c.notifier.Notify("Could not start the stream")
		return errors.Wrap(ErrStoreUnavailable, err, "read playlist")
	}
	if len(items) == 0 {
		c.rollbackClaim(ctx)
		startsRejected.Add(ctx, 1)
		c.notifier.Notify("Add a video before going live")
		return errors.New(ErrEmptyPlaylist, "start")
	}

	now = c.clock.Now()
	online := state.SessionOnline{
		Started:       true,
		StartedAt:     state.Millis(now),
		BroadcasterID: id,
	}
	data, err := json.Marshal(online)
	if err != nil {
		c.rollbackClaim(ctx)
		return errors.Wrap(ErrStoreUnavailable, err, "marshal online record")
	}
	if err := c.store.Put(ctx, statestore.PathOnline, data, statestore.WithSessionLease()); err != nil {
		c.rollbackClaim(ctx)
		c.notifier.Notify("Could not start the stream")
		return errors.Wrap(ErrStoreUnavailable, err, "write online record")
	}

	// viewers only watch the online record, so a failure here degrades
	// exclusivity bookkeeping but the session is live regardless
	presence := state.BroadcasterPresence{ID: id, Started: true, LastPing: state.Millis(now)}
	if err := c.writePresence(ctx, presence); err != nil {
		c.logger.Error("Fail to finalize presence record", log.Error(err))
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.broadcasterID = id
	c.startedAt = now
	c.elapsedDisplay = "00:00"
	c.connections = []Connection{{Role: "host", ID: id}}
	c.cancelSession = cancel
	c.sessionDone = done
	c.mu.Unlock()

	go c.sessionLoop(sessionCtx, done)

	sessionsStarted.Add(ctx, 1)
	c.logger.Info("Session started", log.String("broadcasterId", id))
	c.notifier.Notify("Stream started")
	return nil
}

// Stop tears the session down. Calling it while idle or within the cooldown
// is a no-op; store removals are best-effort and the local state always ends
// up stopped.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	now := c.clock.Now()
	if c.broadcasterID == "" {
		c.mu.Unlock()
		return nil
	}
	if now.Before(c.cooldownUntil) {
		c.mu.Unlock()
		c.logger.Debug("Stop ignored during cooldown")
		return nil
	}
	c.cooldownUntil = now.Add(startStopCooldown)

	// drop the timer handles before any store write is awaited; an
	// in-flight tick finishes but no new one can be scheduled
	cancel := c.cancelSession
	done := c.sessionDone
	c.cancelSession = nil
	c.sessionDone = nil
	elapsed := c.elapsedDisplay
	c.broadcasterID = ""
	c.startedAt = time.Time{}
	c.elapsedDisplay = ""
	c.connections = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.peers.CloseAll()

	for _, key := range []string{
		statestore.PathBroadcaster,
		statestore.PathBroadcasterMessages,
		statestore.PathOnline,
	} {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("Fail to remove session key",
				log.String("key", key),
				log.Error(err))
		}
	}

	sessionsStopped.Add(ctx, 1)
	c.logger.Info("Session stopped", log.String("elapsed", elapsed))
	c.notifier.Notify(fmt.Sprintf("Stream ended (%s)", elapsed))
	return nil
}

// Status returns the local session view.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasterID == "" {
		return Status{}
	}
	return Status{
		Live:          true,
		BroadcasterID: c.broadcasterID,
		StartedAt:     state.Millis(c.startedAt),
		Elapsed:       c.elapsedDisplay,
	}
}

// Connections returns the display list: the host plus every tracked peer.
func (c *Coordinator) Connections() []Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Connection(nil), c.connections...)
}

// claimPresence takes the broadcaster slot: refuse when a fresh record
// exists, otherwise conditionally replace whatever we observed (a stale
// record, or nothing). Losing the conditional write means another
// broadcaster claimed in between.
func (c *Coordinator) claimPresence(ctx context.Context, id string) error {
	kv, err := c.store.Get(ctx, statestore.PathBroadcaster)
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err, "read presence record")
	}

	var modRev int64
	if kv != nil {
		var cur state.BroadcasterPresence
		if err := json.Unmarshal(kv.Value, &cur); err != nil {
			c.logger.Warn("Malformed presence record, reclaiming", log.Error(err))
		} else if cur.IsFresh(c.clock.Now(), StaleThreshold) {
			startsRejected.Add(ctx, 1)
			return errors.Newf(ErrAlreadyBroadcasting, "broadcaster %s is live", cur.ID)
		} else {
			c.logger.Info("Reclaiming stale presence record",
				log.String("staleId", cur.ID))
		}
		modRev = kv.ModRev
	}

	claim := state.BroadcasterPresence{ID: id, Started: false, LastPing: state.Millis(c.clock.Now())}
	data, err := json.Marshal(claim)
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err, "marshal presence record")
	}

	ok, err := c.store.PutIfRevision(ctx, statestore.PathBroadcaster, data, modRev,
		statestore.WithSessionLease())
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err, "claim presence record")
	}
	if !ok {
		startsRejected.Add(ctx, 1)
		return errors.New(ErrAlreadyBroadcasting, "lost the claim race")
	}
	return nil
}

func (c *Coordinator) rollbackClaim(ctx context.Context) {
	if err := c.store.Delete(ctx, statestore.PathBroadcaster); err != nil {
		c.logger.Warn("Fail to roll back presence claim", log.Error(err))
	}
}

func (c *Coordinator) writePresence(ctx context.Context, p state.BroadcasterPresence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(ErrStoreUnavailable, err, "marshal presence record")
	}
	return c.store.Put(ctx, statestore.PathBroadcaster, data, statestore.WithSessionLease())
}

func (c *Coordinator) sessionLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	heartbeat := c.clock.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	elapsed := c.clock.NewTicker(elapsedTick)
	defer elapsed.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.Chan():
			c.heartbeat(ctx)
		case <-elapsed.Chan():
			c.refreshElapsed()
		}
	}
}

func (c *Coordinator) heartbeat(ctx context.Context) {
	c.mu.Lock()
	id := c.broadcasterID
	c.mu.Unlock()
	if id == "" {
		return
	}

	presence := state.BroadcasterPresence{
		ID:       id,
		Started:  true,
		LastPing: state.Millis(c.clock.Now()),
	}
	if err := c.writePresence(ctx, presence); err != nil {
		c.logger.Warn("Fail to refresh presence record", log.Error(err))
	} else {
		heartbeats.Add(ctx, 1)
	}

	c.monitor.Reap(ctx)
	c.refreshConnections()
}

func (c *Coordinator) refreshConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasterID == "" {
		c.connections = nil
		return
	}

	conns := []Connection{{Role: "host", ID: c.broadcasterID}}
	ids := c.peers.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		conns = append(conns, Connection{Role: "viewer", ID: id})
	}
	c.connections = conns
}

func (c *Coordinator) refreshElapsed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasterID == "" {
		return
	}
	c.elapsedDisplay = formatElapsed(c.clock.Now().Sub(c.startedAt))
}

// formatElapsed renders mm:ss; minutes keep counting past 59.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
