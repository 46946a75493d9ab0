package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUnregister(t *testing.T) {
	reg := NewRegistry()

	require.False(t, reg.Online("alice"))

	reg.Register("alice", "c1")
	reg.Register("alice", "c2")
	reg.Register("alice", "c2") // idempotent
	require.True(t, reg.Online("alice"))
	assert.ElementsMatch(t, []string{"c1", "c2"}, reg.ConnectionsOf("alice"))
	assert.Equal(t, 1, reg.OnlineCount())

	wentOffline := reg.Unregister("alice", "c1")
	require.False(t, wentOffline)
	require.True(t, reg.Online("alice"))

	wentOffline = reg.Unregister("alice", "c2")
	require.True(t, wentOffline)
	require.False(t, reg.Online("alice"))
	assert.Nil(t, reg.ConnectionsOf("alice"))
	assert.Equal(t, 0, reg.OnlineCount())
}

func TestUnregisterUnknown(t *testing.T) {
	reg := NewRegistry()

	require.False(t, reg.Unregister("ghost", "c1"))

	reg.Register("bob", "c1")
	require.False(t, reg.Unregister("bob", "c2"))
	require.True(t, reg.Online("bob"))
}

func TestPrimaryConnection(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.PrimaryConnection("alice")
	require.False(t, ok)

	reg.Register("alice", "c1")
	reg.Register("alice", "c2")
	primary, ok := reg.PrimaryConnection("alice")
	require.True(t, ok)
	assert.Contains(t, []string{"c1", "c2"}, primary)
}
