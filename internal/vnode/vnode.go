// Package vnode models the partition-owning processes on a node. A vnode
// owns exactly one (module, partition) pair, requests outbound handoff
// when ownership moves elsewhere, and consumes the exit notification the
// handoff manager delivers when the transfer ends.
package vnode

import (
	"github.com/rs/zerolog"

	"github.com/dreamware/atoll/internal/cluster"
	"github.com/dreamware/atoll/internal/handoff"
	"github.com/dreamware/atoll/internal/storage"
)

// Vnode owns one partition of one storage module on the local node.
//
// The handoff manager holds vnodes only as weak references: it delivers
// exit notifications through HandoffExit and never controls a vnode's
// lifecycle. Exit delivery is non-blocking by contract; a vnode that has
// stopped draining its channel loses notifications rather than stalling
// the manager.
type Vnode struct {
	log    zerolog.Logger
	exits  chan error
	module string
	index  uint64
}

// New creates a vnode for the (module, index) partition.
func New(module string, index uint64, log zerolog.Logger) *Vnode {
	return &Vnode{
		module: module,
		index:  index,
		log:    log,
		// Small buffer: a vnode has at most one handoff in flight, but a
		// forced eviction racing a restart may deliver a second exit.
		exits: make(chan error, 4),
	}
}

// Partition returns the partition this vnode owns.
func (v *Vnode) Partition() storage.PartitionID {
	return storage.PartitionID{Module: v.module, Index: v.index}
}

// RequestHandoff asks the manager to start streaming this vnode's
// partition to the target node, registering the vnode for the exit
// notification.
func (v *Vnode) RequestHandoff(m *handoff.Manager, target cluster.NodeInfo) (handoff.Handle, error) {
	return m.AddOutbound(v.module, v.index, target, v)
}

// HandoffExit receives the handoff manager's exit notification. It never
// blocks: if the vnode is not draining Exits, the notification is
// dropped and logged.
func (v *Vnode) HandoffExit(reason error) {
	select {
	case v.exits <- reason:
	default:
		v.log.Warn().
			Str("module", v.module).
			Uint64("partition", v.index).
			Msg("dropping handoff exit notification, vnode not draining")
	}
}

// Exits returns the channel on which handoff exit reasons arrive. A nil
// reason means the transfer completed normally.
func (v *Vnode) Exits() <-chan error {
	return v.exits
}
