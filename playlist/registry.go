// Package playlist manages the shared ordered list of video links and the
// local position within it.
package playlist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/state"
	"github.com/cimena/cinecast/statestore"
)

// Item is one playlist entry together with its store key. Keys sort in
// insertion order, so key order is play order.
type Item struct {
	Key string `json:"key"`
	state.PlaylistLink
}

// Registry is the write/read path for the shared playlist.
type Registry struct {
	store  statestore.Store
	clock  clockwork.Clock
	logger *log.Logger
}

func NewRegistry(store statestore.Store, clock clockwork.Clock, logger *log.Logger) *Registry {
	return &Registry{
		store:  store,
		clock:  clock,
		logger: logger.Module("playlist"),
	}
}

// Add parses input and appends it to the shared playlist. Unparseable input
// returns ErrInvalidLink and writes nothing.
func (r *Registry) Add(ctx context.Context, input string) (*Item, error) {
	videoID, err := ParseVideoID(input)
	if err != nil {
		linksRejected.Add(ctx, 1)
		return nil, err
	}

	key, err := r.store.MintKey(ctx, statestore.PathScratch)
	if err != nil {
		return nil, errors.Wrap(err, "fail to mint playlist key")
	}

	item := &Item{
		Key: key,
		PlaylistLink: state.PlaylistLink{
			URL:     input,
			VideoID: videoID,
			AddedAt: state.Millis(r.clock.Now()),
		},
	}

	data, err := json.Marshal(item.PlaylistLink)
	if err != nil {
		return nil, errors.Wrap(err, "fail to marshal playlist link")
	}
	if err := r.store.Put(ctx, statestore.PrefixLinks+key, data); err != nil {
		return nil, err
	}

	linksAdded.Add(ctx, 1)
	r.logger.Info("Link added",
		log.String("key", key),
		log.String("videoId", videoID))
	return item, nil
}

// Remove deletes the entry at key; an unknown key is a silent no-op.
func (r *Registry) Remove(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, statestore.PrefixLinks+key); err != nil {
		return err
	}
	linksRemoved.Add(ctx, 1)
	r.logger.Info("Link removed", log.String("key", key))
	return nil
}

// Items returns the playlist in play order. Entries that fail to decode are
// skipped, not fatal.
func (r *Registry) Items(ctx context.Context) ([]Item, error) {
	kvs, err := r.store.List(ctx, statestore.PrefixLinks)
	if err != nil {
		return nil, err
	}
	return DecodeItems(kvs, r.logger), nil
}

// DecodeItems converts raw store entries under the links prefix into ordered
// playlist items. Shared with the viewer-side watch path.
func DecodeItems(kvs []statestore.KeyValue, logger *log.Logger) []Item {
	items := make([]Item, 0, len(kvs))
	for _, kv := range kvs {
		var link state.PlaylistLink
		if err := json.Unmarshal(kv.Value, &link); err != nil {
			logger.Warn("Skipping malformed playlist entry",
				log.String("key", kv.Key),
				log.Error(err))
			continue
		}
		items = append(items, Item{
			Key:          strings.TrimPrefix(kv.Key, statestore.PrefixLinks),
			PlaylistLink: link,
		})
	}
	return items
}
