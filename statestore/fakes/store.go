// Package fakes provides an in-memory Store for tests.
package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cimena/cinecast/statestore"
)

type entry struct {
	value  []byte
	modRev int64
	leased bool
}

type watcher struct {
	ctx    context.Context
	prefix string
	ch     chan statestore.Event
}

// Store is an in-memory statestore.Store. Watch subscribers receive the
// snapshot replay and then every subsequent change. DropSession simulates a
// disconnect by deleting all lease-bound keys.
type Store struct {
	mu       sync.Mutex
	data     map[string]entry
	rev      int64
	minted   int
	watchers []*watcher
	closed   bool
}

func NewStore() *Store {
	return &Store{data: map[string]entry{}}
}

func (s *Store) Get(_ context.Context, key string) (*statestore.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &statestore.KeyValue{Key: key, Value: append([]byte(nil), e.value...), ModRev: e.modRev}, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]statestore.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kvs []statestore.KeyValue
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) {
			kvs = append(kvs, statestore.KeyValue{Key: k, Value: append([]byte(nil), e.value...), ModRev: e.modRev})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte, opts ...statestore.PutOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, value, hasSessionLease(opts))
	return nil
}

func (s *Store) PutIfRevision(_ context.Context, key string, value []byte, modRev int64, opts ...statestore.PutOption) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[key]
	if modRev == 0 {
		if exists {
			return false, nil
		}
	} else if !exists || e.modRev != modRev {
		return false, nil
	}

	s.put(key, value, hasSessionLease(opts))
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delete(key)
	return nil
}

func (s *Store) DeleteIfRevision(_ context.Context, key string, modRev int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[key]
	if !exists || e.modRev != modRev {
		return false, nil
	}
	s.delete(key)
	return true, nil
}

func (s *Store) Watch(ctx context.Context, prefix string) <-chan statestore.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{ctx: ctx, prefix: prefix, ch: make(chan statestore.Event, 1024)}
	s.watchers = append(s.watchers, w)

	w.ch <- statestore.Event{Type: statestore.EventReset}
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.ch <- statestore.Event{Type: statestore.EventPut, Key: k, Value: append([]byte(nil), s.data[k].value...)}
	}
	w.ch <- statestore.Event{Type: statestore.EventSynced}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.watchers {
			if cur == w {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(w.ch)
	}()

	return w.ch
}

func (s *Store) MintKey(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minted++
	return fmt.Sprintf("-minted%012d", s.minted), nil
}

func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.dropLeased()
	return nil
}

// DropSession deletes every lease-bound key, as the store would after this
// client's connection dropped.
func (s *Store) DropSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLeased()
}

// Keys returns all stored keys sorted, for assertions.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) put(key string, value []byte, leased bool) {
	s.rev++
	s.data[key] = entry{value: append([]byte(nil), value...), modRev: s.rev, leased: leased}
	s.notify(statestore.Event{Type: statestore.EventPut, Key: key, Value: append([]byte(nil), value...)})
}

func (s *Store) delete(key string) {
	if _, ok := s.data[key]; !ok {
		return
	}
	delete(s.data, key)
	s.notify(statestore.Event{Type: statestore.EventDelete, Key: key})
}

func (s *Store) dropLeased() {
	var keys []string
	for k, e := range s.data {
		if e.leased {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.delete(k)
	}
}

func (s *Store) notify(ev statestore.Event) {
	for _, w := range s.watchers {
		if !strings.HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

func hasSessionLease(opts []statestore.PutOption) bool {
	// options are opaque funcs; apply them to inspect
	probe := statestore.ProbePutOptions(opts)
	return probe.SessionLease
}
