package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddKeepsOrder(t *testing.T) {
	reg := NewRegistry(testLog())
	for _, inst := range instances("b", &bare{}, "a", &bare{}, "c", &bare{}) {
		reg.Add(inst)
	}

	assert.Equal(t, 3, reg.Count())
	assert.Equal(t, []string{"b", "a", "c"}, reg.Names())
}

func TestRegistry_DuplicateNamesAllowed(t *testing.T) {
	reg := NewRegistry(testLog())
	for _, inst := range instances("dup", &bare{}, "dup", &bare{}) {
		reg.Add(inst)
	}
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(testLog())
	insts := instances("a", &bare{}, "b", &bare{})
	for _, inst := range insts {
		reg.Add(inst)
	}

	got := reg.Get("b")
	require.NotNil(t, got)
	assert.Same(t, insts[1], got)
	assert.Nil(t, reg.Get("nonexistent"))
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry(testLog())
	insts := instances("a", &bare{}, "b", &bare{}, "c", &bare{})
	for _, inst := range insts {
		reg.Add(inst)
	}

	assert.True(t, reg.Remove(insts[1]))
	assert.Equal(t, []string{"a", "c"}, reg.Names())
	assert.False(t, reg.Remove(insts[1]))
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	reg := NewRegistry(testLog())
	for _, inst := range instances("a", &bare{}) {
		reg.Add(inst)
	}

	all := reg.All()
	all[0] = nil
	assert.NotNil(t, reg.All()[0])
}
