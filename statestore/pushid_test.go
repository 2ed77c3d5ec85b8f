package statestore

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushIDFormat(t *testing.T) {
	src := newPushIDSource()
	id := src.Next(time.Now())

	require.Len(t, id, 20)
	for _, c := range id {
		require.Contains(t, pushIDAlphabet, string(c))
	}
}

func TestPushIDSameMillisecondOrdered(t *testing.T) {
	src := newPushIDSource()
	now := time.Now()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = src.Next(now)
	}

	require.True(t, sort.StringsAreSorted(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestPushIDTimestampOrdered(t *testing.T) {
	src := newPushIDSource()
	now := time.Now()

	earlier := src.Next(now)
	later := src.Next(now.Add(5 * time.Millisecond))

	require.Less(t, earlier, later)
	// timestamp prefix differs, random suffix is fresh
	require.NotEqual(t, earlier[:8], later[:8])
}
