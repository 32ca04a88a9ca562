// Package ring maintains the cluster-wide mapping of partitions to owning
// nodes and produces the ownership snapshots consumed by handoff and routing
// decisions. See doc.go for complete package documentation.
package ring

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Owner records the current owning node for a single partition.
//
// Owner values are immutable once created; the ring returns copies so
// callers can never mutate shared state.
type Owner struct {
	// Node identifies the owning node. Matches a registered node's ID.
	Node string `json:"node"`

	// Partition is the partition index, in [0, NumPartitions).
	Partition uint64 `json:"partition"`
}

// Snapshot is a point-in-time, copy-out view of partition ownership.
//
// Snapshots are what the ring hands to consumers: the handoff manager
// forwards one to ring-event subscribers whenever an exclusion is added,
// and routing layers use one to locate a partition's owner. A snapshot
// never changes after it is taken; concurrent ring mutations produce new
// snapshots.
//
// Partitions currently excluded from inbound handoff are omitted from
// Owners so that downstream ownership computation immediately stops
// steering data at them.
type Snapshot struct {
	// TakenAt is when the snapshot was produced, for diagnostics.
	TakenAt time.Time `json:"taken_at"`

	// Owners lists the visible partition owners, sorted by partition.
	Owners []Owner `json:"owners"`
}

// OwnerOf returns the owning node for a partition, if it is visible in
// this snapshot. Excluded or unassigned partitions report ok == false.
func (s Snapshot) OwnerOf(partition uint64) (string, bool) {
	// Owners is sorted by partition, so binary search.
	i := sort.Search(len(s.Owners), func(i int) bool {
		return s.Owners[i].Partition >= partition
	})
	if i < len(s.Owners) && s.Owners[i].Partition == partition {
		return s.Owners[i].Node, true
	}
	return "", false
}

// Ring is the authoritative partition-to-node ownership map for the local
// process, with an exclusion overlay that hides partitions barred from
// inbound handoff.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned data is copied to prevent races
type Ring struct {
	owners   map[uint64]string   // partition -> owning node
	excluded map[uint64]struct{} // partitions hidden from snapshots
	mu       sync.RWMutex        // protects both maps
}

// New creates an empty ring with no ownership assignments.
func New() *Ring {
	return &Ring{
		owners:   make(map[uint64]string),
		excluded: make(map[uint64]struct{}),
	}
}

// SetOwner records nodeID as the owner of partition, replacing any
// previous owner.
func (r *Ring) SetOwner(partition uint64, nodeID string) error {
	if nodeID == "" {
		return errors.New("node ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[partition] = nodeID
	return nil
}

// RemoveOwner drops the ownership record for partition. Removing an
// unassigned partition is a no-op.
func (r *Ring) RemoveOwner(partition uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, partition)
}

// Owner returns the owning node for partition, ignoring the exclusion
// overlay. Use a Snapshot when exclusion visibility matters.
func (r *Ring) Owner(partition uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.owners[partition]
	return node, ok
}

// Exclude hides partition from subsequent snapshots. Idempotent.
func (r *Ring) Exclude(partition uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excluded[partition] = struct{}{}
}

// Unexclude restores partition visibility in subsequent snapshots.
// Idempotent.
func (r *Ring) Unexclude(partition uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.excluded, partition)
}

// Current produces a snapshot of the visible ownership map.
//
// The snapshot omits excluded partitions and is safe to retain: it shares
// no state with the ring.
func (r *Ring) Current() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make([]Owner, 0, len(r.owners))
	for partition, node := range r.owners {
		if _, hidden := r.excluded[partition]; hidden {
			continue
		}
		owners = append(owners, Owner{Partition: partition, Node: node})
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].Partition < owners[j].Partition
	})

	return Snapshot{
		TakenAt: time.Now(),
		Owners:  owners,
	}
}

// Rebalance redistributes partitions [0, numPartitions) across the given
// nodes round-robin, replacing all previous assignments.
//
// The exclusion overlay is untouched: an excluded partition gets a new
// owner like every other partition but stays hidden from snapshots until
// its exclusion is lifted.
func (r *Ring) Rebalance(nodes []string, numPartitions uint64) error {
	if len(nodes) == 0 {
		return errors.New("cannot rebalance with no nodes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.owners = make(map[uint64]string, numPartitions)
	for partition := uint64(0); partition < numPartitions; partition++ {
		r.owners[partition] = nodes[partition%uint64(len(nodes))]
	}
	return nil
}

// NumAssigned returns the number of partitions with an owner, including
// excluded ones.
func (r *Ring) NumAssigned() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}
