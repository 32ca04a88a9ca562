package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndRemoveOwner(t *testing.T) {
	r := New()

	require.NoError(t, r.SetOwner(3, "node-1"))
	node, ok := r.Owner(3)
	assert.True(t, ok)
	assert.Equal(t, "node-1", node)

	// Replacing an owner overwrites.
	require.NoError(t, r.SetOwner(3, "node-2"))
	node, _ = r.Owner(3)
	assert.Equal(t, "node-2", node)

	r.RemoveOwner(3)
	_, ok = r.Owner(3)
	assert.False(t, ok)

	// Removing again is a no-op.
	r.RemoveOwner(3)
}

func TestSetOwnerRejectsEmptyNode(t *testing.T) {
	r := New()
	assert.Error(t, r.SetOwner(0, ""))
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOwner(9, "node-3"))
	require.NoError(t, r.SetOwner(1, "node-1"))
	require.NoError(t, r.SetOwner(5, "node-2"))

	snap := r.Current()
	require.Len(t, snap.Owners, 3)
	assert.Equal(t, []Owner{
		{Partition: 1, Node: "node-1"},
		{Partition: 5, Node: "node-2"},
		{Partition: 9, Node: "node-3"},
	}, snap.Owners)
	assert.False(t, snap.TakenAt.IsZero())

	// Later mutations don't leak into an existing snapshot.
	require.NoError(t, r.SetOwner(1, "node-9"))
	node, ok := snap.OwnerOf(1)
	assert.True(t, ok)
	assert.Equal(t, "node-1", node)
}

func TestSnapshotOwnerOf(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOwner(2, "node-1"))

	snap := r.Current()
	node, ok := snap.OwnerOf(2)
	assert.True(t, ok)
	assert.Equal(t, "node-1", node)

	_, ok = snap.OwnerOf(7)
	assert.False(t, ok)
}

// TestExclusionHidesOwner checks the exclusion overlay: an excluded
// partition keeps its owner but disappears from snapshots until the
// exclusion is lifted.
func TestExclusionHidesOwner(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOwner(4, "node-1"))
	require.NoError(t, r.SetOwner(8, "node-2"))

	r.Exclude(4)
	r.Exclude(4) // idempotent

	snap := r.Current()
	_, ok := snap.OwnerOf(4)
	assert.False(t, ok)
	_, ok = snap.OwnerOf(8)
	assert.True(t, ok)

	// Direct queries still see the owner; only snapshots filter.
	node, ok := r.Owner(4)
	assert.True(t, ok)
	assert.Equal(t, "node-1", node)
	assert.Equal(t, 2, r.NumAssigned())

	r.Unexclude(4)
	_, ok = r.Current().OwnerOf(4)
	assert.True(t, ok)
}

func TestRebalance(t *testing.T) {
	t.Run("round robin across nodes", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Rebalance([]string{"a", "b"}, 4))

		snap := r.Current()
		require.Len(t, snap.Owners, 4)
		for _, o := range snap.Owners {
			if o.Partition%2 == 0 {
				assert.Equal(t, "a", o.Node)
			} else {
				assert.Equal(t, "b", o.Node)
			}
		}
	})

	t.Run("no nodes is an error", func(t *testing.T) {
		r := New()
		assert.Error(t, r.Rebalance(nil, 4))
	})

	t.Run("replaces previous assignments", func(t *testing.T) {
		r := New()
		require.NoError(t, r.SetOwner(99, "old"))
		require.NoError(t, r.Rebalance([]string{"a"}, 2))
		_, ok := r.Owner(99)
		assert.False(t, ok)
		assert.Equal(t, 2, r.NumAssigned())
	})
}

func TestEventsFanout(t *testing.T) {
	e := NewEvents()
	fast := e.Subscribe(2)
	full := e.Subscribe(1)

	e.RingUpdate(Snapshot{})
	e.RingUpdate(Snapshot{}) // overflows the 1-slot subscriber silently

	assert.Len(t, fast, 2)
	assert.Len(t, full, 1)

	// A publisher with no subscribers doesn't block.
	NewEvents().RingUpdate(Snapshot{})
}
