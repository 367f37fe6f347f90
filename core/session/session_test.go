package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertIfAbsent(t *testing.T) {
	reg := NewRegistry()
	a := NewSession("t1", "tok-a", nil)
	prev, inserted := reg.Insert(a)
	require.True(t, inserted)
	require.Nil(t, prev)

	b := NewSession("t1", "tok-b", nil)
	prev, inserted = reg.Insert(b)
	assert.False(t, inserted)
	assert.Same(t, a, prev)

	got, ok := reg.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "tok-a", got.Token())
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryReplaceReturnsDisplaced(t *testing.T) {
	reg := NewRegistry()
	a := NewSession("t1", "tok-a", nil)
	_, _ = reg.Insert(a)

	b := NewSession("t1", "tok-b", nil)
	prev := reg.Replace(b)
	assert.Same(t, a, prev)

	got, ok := reg.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "tok-b", got.Token())
}

func TestRegistryRemoveIsOwnerGuarded(t *testing.T) {
	reg := NewRegistry()
	old := NewSession("t1", "tok-old", nil)
	_, _ = reg.Insert(old)
	fresh := NewSession("t1", "tok-new", nil)
	reg.Replace(fresh)

	// The stale session's teardown must not evict the fresh one.
	reg.Remove("t1", old)
	got, ok := reg.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "tok-new", got.Token())

	reg.Remove("t1", fresh)
	_, ok = reg.Get("t1")
	assert.False(t, ok)
}

func TestSessionTokenLifecycle(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()

	s := NewSession("t1", "tok", server)
	assert.True(t, s.Alive())
	assert.Equal(t, "tok", s.Token())

	s.ClearToken()
	assert.Empty(t, s.Token())
	assert.True(t, s.Alive())

	s.Close()
	assert.False(t, s.Alive())
	s.Close() // idempotent
}
