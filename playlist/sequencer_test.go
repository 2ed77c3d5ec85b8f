package playlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i].Key = id
		out[i].VideoID = id
	}
	return out
}

func TestSequencerPlaysInOrderThenEnds(t *testing.T) {
	seq := NewSequencer()
	seq.Replace(items("a", "b", "c"))
	seq.Reset()

	cur, ok := seq.Current()
	require.True(t, ok)
	require.Equal(t, "a", cur.VideoID)

	next, ok := seq.Advance()
	require.True(t, ok)
	require.Equal(t, "b", next.VideoID)

	next, ok = seq.Advance()
	require.True(t, ok)
	require.Equal(t, "c", next.VideoID)

	// no loop
	_, ok = seq.Advance()
	require.False(t, ok)
	cur, ok = seq.Current()
	require.True(t, ok)
	require.Equal(t, "c", cur.VideoID)
}

func TestSequencerEmpty(t *testing.T) {
	seq := NewSequencer()

	_, ok := seq.Current()
	require.False(t, ok)
	_, ok = seq.Advance()
	require.False(t, ok)
}

func TestSequencerPositionSurvivesReplace(t *testing.T) {
	seq := NewSequencer()
	seq.Replace(items("a", "b"))
	seq.Reset()

	_, ok := seq.Advance()
	require.True(t, ok)

	// a link is appended mid-playback
	seq.Replace(items("a", "b", "c"))
	cur, ok := seq.Current()
	require.True(t, ok)
	require.Equal(t, "b", cur.VideoID)

	next, ok := seq.Advance()
	require.True(t, ok)
	require.Equal(t, "c", next.VideoID)
}

func TestSequencerClampsWhenListShrinks(t *testing.T) {
	seq := NewSequencer()
	seq.Replace(items("a", "b", "c"))
	seq.Reset()
	_, _ = seq.Advance()
	_, _ = seq.Advance()

	seq.Replace(items("a"))
	cur, ok := seq.Current()
	require.True(t, ok)
	require.Equal(t, "a", cur.VideoID)
}
