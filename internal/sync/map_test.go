package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapBasic(t *testing.T) {
	m := NewMap[string, int]()

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())

	m.Delete("a")
	assert.Equal(t, 0, m.Len())
}

func TestMapLoadAndDelete(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 7)

	v, loaded := m.LoadAndDelete("a")
	assert.True(t, loaded)
	assert.Equal(t, 7, v)

	_, loaded = m.LoadAndDelete("a")
	assert.False(t, loaded)
}

func TestMapClear(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)

	old := m.Clear()
	assert.Len(t, old, 2)
	assert.Equal(t, 0, m.Len())
}

func TestMapRange(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)

	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)
}
