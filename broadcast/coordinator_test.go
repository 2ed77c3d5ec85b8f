package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cimena/cinecast/internal/errors"
	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/state"
	"github.com/cimena/cinecast/playlist"
	"github.com/cimena/cinecast/statestore"
	"github.com/cimena/cinecast/statestore/fakes"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type CoordinatorTestSuite struct {
	suite.Suite

	store       *fakes.Store
	clock       *clockwork.FakeClock
	notifier    *recordingNotifier
	registry    *playlist.Registry
	coordinator *Coordinator
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) SetupTest() {
	logger := log.NewTest(s.T())
	s.store = fakes.NewStore()
	s.clock = clockwork.NewFakeClock()
	s.notifier = &recordingNotifier{}
	s.registry = playlist.NewRegistry(s.store, s.clock, logger)
	s.coordinator = NewCoordinator(CoordinatorConfig{
		Store:    s.store,
		Registry: s.registry,
		Notifier: s.notifier,
		Clock:    s.clock,
		Logger:   logger,
	})
}

func (s *CoordinatorTestSuite) TearDownTest() {
	// unblock any session goroutine
	s.clock.Advance(startStopCooldown)
	_ = s.coordinator.Stop(context.Background())
}

func (s *CoordinatorTestSuite) addLink() {
	_, err := s.registry.Add(context.Background(), "dQw4w9WgXcQ")
	s.Require().NoError(err)
}

func (s *CoordinatorTestSuite) presence() *state.BroadcasterPresence {
	kv, err := s.store.Get(context.Background(), statestore.PathBroadcaster)
	s.Require().NoError(err)
	if kv == nil {
		return nil
	}
	var p state.BroadcasterPresence
	s.Require().NoError(json.Unmarshal(kv.Value, &p))
	return &p
}

func (s *CoordinatorTestSuite) online() *state.SessionOnline {
	kv, err := s.store.Get(context.Background(), statestore.PathOnline)
	s.Require().NoError(err)
	if kv == nil {
		return nil
	}
	var o state.SessionOnline
	s.Require().NoError(json.Unmarshal(kv.Value, &o))
	return &o
}

func (s *CoordinatorTestSuite) seedPresence(id string, age time.Duration) {
	p := state.BroadcasterPresence{
		ID:       id,
		Started:  true,
		LastPing: state.Millis(s.clock.Now().Add(-age)),
	}
	data, err := json.Marshal(p)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(context.Background(), statestore.PathBroadcaster, data))
}

func (s *CoordinatorTestSuite) TestStartBringsSessionOnline() {
	s.addLink()

	s.Require().NoError(s.coordinator.Start(context.Background()))

	p := s.presence()
	s.Require().NotNil(p)
	s.Require().True(p.Started)
	s.Require().NotEmpty(p.ID)

	o := s.online()
	s.Require().NotNil(o)
	s.Require().True(o.Started)
	s.Require().Equal(p.ID, o.BroadcasterID)

	status := s.coordinator.Status()
	s.Require().True(status.Live)
	s.Require().Equal(p.ID, status.BroadcasterID)

	s.Require().Contains(s.notifier.Messages(), "Stream started")
}

func (s *CoordinatorTestSuite) TestStartEmptyPlaylist() {
	err := s.coordinator.Start(context.Background())
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrEmptyPlaylist))

	// nothing was left behind
	s.Require().Nil(s.presence())
	s.Require().Nil(s.online())
	s.Require().False(s.coordinator.Status().Live)
	s.Require().Contains(s.notifier.Messages(), "Add a video before going live")
}

func (s *CoordinatorTestSuite) TestStartRejectedByFreshPresence() {
	s.addLink()
	s.seedPresence("other", 30*time.Second)

	err := s.coordinator.Start(context.Background())
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrAlreadyBroadcasting))

	// foreign presence untouched, no online record written
	p := s.presence()
	s.Require().NotNil(p)
	s.Require().Equal("other", p.ID)
	s.Require().Nil(s.online())
}

func (s *CoordinatorTestSuite) TestStartReclaimsStalePresence() {
	s.addLink()
	s.seedPresence("dead", StaleThreshold+time.Second)

	s.Require().NoError(s.coordinator.Start(context.Background()))

	p := s.presence()
	s.Require().NotNil(p)
	s.Require().NotEqual("dead", p.ID)
	s.Require().True(p.Started)
}

func (s *CoordinatorTestSuite) TestStartTwiceLocally() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))

	err := s.coordinator.Start(context.Background())
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrSessionActive))
}

func (s *CoordinatorTestSuite) TestStartCooldownAfterAttempt() {
	err := s.coordinator.Start(context.Background())
	s.Require().True(errors.Is(err, ErrEmptyPlaylist))

	s.addLink()
	err = s.coordinator.Start(context.Background())
	s.Require().Error(err)
	s.Require().True(errors.Is(err, ErrCooldown))

	s.clock.Advance(startStopCooldown)
	s.Require().NoError(s.coordinator.Start(context.Background()))
}

func (s *CoordinatorTestSuite) TestStopRemovesSessionKeys() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))
	s.clock.Advance(startStopCooldown)

	s.Require().NoError(s.coordinator.Stop(context.Background()))

	s.Require().Nil(s.presence())
	s.Require().Nil(s.online())
	s.Require().False(s.coordinator.Status().Live)

	found := false
	for _, m := range s.notifier.Messages() {
		if len(m) >= 12 && m[:12] == "Stream ended" {
			found = true
		}
	}
	s.Require().True(found, "expected a stream-ended notification, got %v", s.notifier.Messages())
}

func (s *CoordinatorTestSuite) TestStopWhileIdle() {
	s.Require().NoError(s.coordinator.Stop(context.Background()))
}

func (s *CoordinatorTestSuite) TestStopDuringCooldownIsNoop() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))

	// still inside the start cooldown
	s.Require().NoError(s.coordinator.Stop(context.Background()))
	s.Require().True(s.coordinator.Status().Live)
	s.Require().NotNil(s.online())
}

func (s *CoordinatorTestSuite) TestSecondStopDoesNotRemoveAgain() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))
	s.clock.Advance(startStopCooldown)
	s.Require().NoError(s.coordinator.Stop(context.Background()))

	// another broadcaster comes online in between
	s.seedPresence("successor", 0)

	s.clock.Advance(startStopCooldown)
	s.Require().NoError(s.coordinator.Stop(context.Background()))

	p := s.presence()
	s.Require().NotNil(p)
	s.Require().Equal("successor", p.ID)
}

func (s *CoordinatorTestSuite) TestHeartbeatRefreshesPresence() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))

	before := s.presence().LastPing

	// wait for the session loop to register its two tickers before
	// advancing, or the tick lands after the advanced time and never fires
	s.clock.BlockUntil(2)
	s.clock.Advance(HeartbeatInterval)
	s.Require().Eventually(func() bool {
		p := s.presence()
		return p != nil && p.LastPing > before
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *CoordinatorTestSuite) TestHeartbeatReapsStaleViewersAndRefreshesConnections() {
	s.addLink()
	s.Require().NoError(s.coordinator.Start(context.Background()))
	hostID := s.coordinator.Status().BroadcasterID

	ctx := context.Background()
	s.putViewer(ctx, "fresh-viewer", 0)
	s.putViewer(ctx, "dead-viewer", ViewerStaleThreshold+HeartbeatInterval+time.Second)

	// see TestHeartbeatRefreshesPresence: sync with the session loop's
	// tickers before advancing the fake clock
	s.clock.BlockUntil(2)
	s.clock.Advance(HeartbeatInterval)

	s.Require().Eventually(func() bool {
		conns := s.coordinator.Connections()
		return len(conns) == 2 &&
			conns[0] == Connection{Role: "host", ID: hostID} &&
			conns[1] == Connection{Role: "viewer", ID: "fresh-viewer"}
	}, 2*time.Second, 10*time.Millisecond)

	kv, err := s.store.Get(ctx, statestore.PrefixViewers+"dead-viewer")
	s.Require().NoError(err)
	s.Require().Nil(kv)
}

func (s *CoordinatorTestSuite) putViewer(ctx context.Context, id string, age time.Duration) {
	rec := state.ViewerPresence{LastSeen: state.Millis(s.clock.Now().Add(-age))}
	data, err := json.Marshal(rec)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(ctx, statestore.PrefixViewers+id, data))
}

func TestFormatElapsed(t *testing.T) {
	require.Equal(t, "00:00", formatElapsed(0))
	require.Equal(t, "00:09", formatElapsed(9*time.Second))
	require.Equal(t, "01:09", formatElapsed(69*time.Second))
	require.Equal(t, "60:00", formatElapsed(time.Hour))
	require.Equal(t, "00:00", formatElapsed(-time.Second))
}
