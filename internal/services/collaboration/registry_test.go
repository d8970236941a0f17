package collaboration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", nil)

	snap, ok := r.Snapshot("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", snap.ID)
	assert.Empty(t, snap.UserID)
	assert.Empty(t, snap.WorkspaceID)
	assert.Empty(t, snap.PageID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_IdentifyUnknownConnectionIsNoop(t *testing.T) {
	r := NewRegistry()
	// Must not panic or create an entry.
	r.Identify("ghost", "u1", "Alice", "#abc")
	_, ok := r.Snapshot("ghost")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ScopeFields(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", nil)
	r.Identify("c1", "u1", "Alice", "#abc")
	r.SetWorkspace("c1", "w1")
	r.SetPage("c1", "p1")

	snap, ok := r.Snapshot("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "Alice", snap.UserName)
	assert.Equal(t, "w1", snap.WorkspaceID)
	assert.Equal(t, "p1", snap.PageID)
}

func TestRegistry_RemoveReturnsLastSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", nil)
	r.Identify("c1", "u1", "Alice", "#abc")
	r.SetWorkspace("c1", "w1")

	snap := r.Remove("c1")
	require.NotNil(t, snap)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "w1", snap.WorkspaceID)

	// Second remove yields nil: teardown is idempotent.
	assert.Nil(t, r.Remove("c1"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_UserConnectionsOnPage(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c1", "c2", "c3"} {
		r.Register(id, nil)
	}
	// Two tabs of the same user on p1, another user on p2.
	r.Identify("c1", "u1", "Alice", "#abc")
	r.SetPage("c1", "p1")
	r.Identify("c2", "u1", "Alice", "#abc")
	r.SetPage("c2", "p1")
	r.Identify("c3", "u2", "Bob", "#def")
	r.SetPage("c3", "p2")

	assert.Equal(t, 2, r.UserConnectionsOnPage("u1", "p1"))
	assert.Equal(t, 0, r.UserConnectionsOnPage("u1", "p2"))
	assert.Equal(t, 1, r.UserConnectionsOnPage("u2", "p2"))

	r.Remove("c1")
	assert.Equal(t, 1, r.UserConnectionsOnPage("u1", "p1"))
	r.Remove("c2")
	assert.Equal(t, 0, r.UserConnectionsOnPage("u1", "p1"))
}

func TestColorForUser_Stable(t *testing.T) {
	assert.Equal(t, colorForUser("u1"), colorForUser("u1"))
	assert.NotEmpty(t, colorForUser(""))
}
