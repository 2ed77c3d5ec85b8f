package playlist

import (
	gosync "sync"
)

// Sequencer tracks the position in the playlist for one playback session.
// The list is replaced wholesale on every store notification; the position
// survives replacements so an unrelated add does not restart playback.
type Sequencer struct {
	mu    gosync.Mutex
	items []Item
	index int
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Replace swaps in the latest playlist. If the list shrank below the current
// position, the position clamps to the end.
func (s *Sequencer) Replace(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = items
	if s.index >= len(items) && len(items) > 0 {
		s.index = len(items) - 1
	}
}

// Reset rewinds to the first entry; called on each fresh live acquisition.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = 0
}

// Current returns the entry at the playhead, or false when the list is empty.
func (s *Sequencer) Current() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.items) {
		return Item{}, false
	}
	return s.items[s.index], true
}

// Advance moves to the next entry when one exists. It returns false at the
// end of the playlist; playback does not loop.
func (s *Sequencer) Advance() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index+1 >= len(s.items) {
		return Item{}, false
	}
	s.index++
	return s.items[s.index], true
}

func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}
