// Package viewer is the watch side of the protocol: it follows the shared
// store, drives a private player while a session is live, and keeps this
// viewer's presence record fresh.
package viewer

import (
	"context"
	"sort"
	"strings"
	gosync "sync"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/notify"
	"github.com/cimena/cinecast/player"
	"github.com/cimena/cinecast/playlist"
	"github.com/cimena/cinecast/statestore"
)

type ObserverConfig struct {
	Store    statestore.Store
	Factory  player.Factory
	Notifier notify.Notifier
	Logger   *log.Logger
}

// Observer materializes the livestreams prefix into {online, links} and
// drives playback from it. The player is acquired lazily, at most once per
// live session, and released before the live flag flips back off so nothing
// can touch a torn-down player.
type Observer struct {
	store     statestore.Store
	factory   player.Factory
	notifier  notify.Notifier
	sequencer *playlist.Sequencer
	logger    *log.Logger

	mu             gosync.Mutex
	kvs            map[string][]byte
	staging        map[string][]byte
	rebuilding     bool
	live           bool
	hasStartedOnce bool
	audioEnabled   bool
	guard          *player.Guard
	lastSig        string
}

func NewObserver(cfg ObserverConfig) *Observer {
	return &Observer{
		store:     cfg.Store,
		factory:   cfg.Factory,
		notifier:  cfg.Notifier,
		sequencer: playlist.NewSequencer(),
		logger:    cfg.Logger.Module("observer"),
		kvs:       make(map[string][]byte),
	}
}

// Run consumes the watch stream until ctx is cancelled. The snapshot that
// opens every (re)subscription is staged and applied as one unit, so a
// reconnect never looks like the session briefly going offline.
func (o *Observer) Run(ctx context.Context) error {
	for ev := range o.store.Watch(ctx, statestore.PrefixLivestreams) {
		o.handle(ctx, ev)
	}

	o.mu.Lock()
	o.releasePlayerLocked()
	o.live = false
	o.mu.Unlock()
	return ctx.Err()
}

// Live reports whether a session is currently on air.
func (o *Observer) Live() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// HasStartedOnce reports whether any session was observed live since this
// observer came up; it picks between "stream ended" and an idle waiting UI.
func (o *Observer) HasStartedOnce() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasStartedOnce
}

// EnableAudio records the user's unmute gesture and applies it to a player
// already on screen. Playback starts muted until this is called.
func (o *Observer) EnableAudio() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.audioEnabled {
		return
	}
	o.audioEnabled = true
	if o.guard != nil {
		o.guard.Unmute()
	}
}

func (o *Observer) handle(ctx context.Context, ev statestore.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Type {
	case statestore.EventReset:
		o.staging = make(map[string][]byte)
		o.rebuilding = true
	case statestore.EventSynced:
		o.kvs = o.staging
		o.staging = nil
		o.rebuilding = false
		o.syncLocked(ctx)
	case statestore.EventPut:
		if o.rebuilding {
			o.staging[ev.Key] = ev.Value
			return
		}
		o.kvs[ev.Key] = ev.Value
		o.syncLocked(ctx)
	case statestore.EventDelete:
		if o.rebuilding {
			delete(o.staging, ev.Key)
			return
		}
		delete(o.kvs, ev.Key)
		o.syncLocked(ctx)
	}
}

// syncLocked re-derives local state from the materialized view and reacts to
// whatever changed since the last pass.
func (o *Observer) syncLocked(ctx context.Context) {
	_, online := o.kvs[statestore.PathOnline]
	items := o.itemsLocked()

	if o.live && !online {
		// tear the player down while the live flag still says on air
		o.releasePlayerLocked()
		o.live = false
		o.logger.Info("Stream went offline")
	}
	if !o.live && online {
		o.live = true
		o.hasStartedOnce = true
		sessionsObserved.Add(ctx, 1)
		o.logger.Info("Stream is live")
	}

	sig := playbackSignature(o.live, items)
	if sig == o.lastSig {
		return
	}
	o.lastSig = sig

	o.sequencer.Replace(items)
	if !o.live || len(items) == 0 {
		return
	}
	o.sequencer.Reset()

	if o.guard == nil {
		ctrl, err := o.factory.Acquire(ctx, player.Events{
			OnReady: o.onReady,
			OnEnded: o.onEnded,
		})
		if err != nil {
			// retry on the next notification
			o.logger.Warn("Fail to acquire player", log.Error(err))
			o.lastSig = ""
			return
		}
		o.guard = player.NewGuard(ctrl, o.logger)
		playersAcquired.Add(ctx, 1)
	}

	first, _ := o.sequencer.Current()
	o.guard.LoadByID(first.VideoID)
	videosLoaded.Add(ctx, 1)
	if o.audioEnabled {
		o.guard.Unmute()
	} else {
		o.guard.Mute()
	}
}

func (o *Observer) onReady() {
	o.logger.Debug("Player ready")
}

func (o *Observer) onEnded() {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, ok := o.sequencer.Advance()
	if !ok {
		playlistEndings.Add(context.Background(), 1)
		o.logger.Info("Playlist finished")
		o.notifier.Notify("Playlist finished")
		return
	}
	if o.guard != nil {
		o.guard.LoadByID(next.VideoID)
		videosLoaded.Add(context.Background(), 1)
	}
}

func (o *Observer) releasePlayerLocked() {
	if o.guard == nil {
		return
	}
	o.guard.Release()
	o.guard = nil
	o.lastSig = ""
}

func (o *Observer) itemsLocked() []playlist.Item {
	kvs := make([]statestore.KeyValue, 0, len(o.kvs))
	for key, value := range o.kvs {
		if strings.HasPrefix(key, statestore.PrefixLinks) {
			kvs = append(kvs, statestore.KeyValue{Key: key, Value: value})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return playlist.DecodeItems(kvs, o.logger)
}

// playbackSignature keys the load-index-0 reaction: it changes when the live
// flag flips or the playlist content changes, and on nothing else.
func playbackSignature(live bool, items []playlist.Item) string {
	if !live {
		return ""
	}
	var b strings.Builder
	b.WriteString("live")
	for _, item := range items {
		b.WriteByte('|')
		b.WriteString(item.Key)
		b.WriteByte(':')
		b.WriteString(item.VideoID)
	}
	return b.String()
}
