// Package storage provides the in-memory, partition-namespaced key-value
// store that handoff transfer units drain and fill.
//
// # Overview
//
// Atoll shards each storage module's keyspace into fixed partitions; a
// partition is the unit of ownership and therefore the unit of handoff.
// PartitionStore keys every operation by PartitionID so that a whole
// partition can be read out (Entries), written in bulk (PutBatch), and
// discarded after a completed transfer (DropPartition) without touching
// any other partition's data.
//
// # Data Flow During Handoff
//
//	source node                         destination node
//	┌───────────────┐                   ┌───────────────┐
//	│ PartitionStore│                   │ PartitionStore│
//	│   Entries()   │──► sender ──────► │  PutBatch()   │
//	│ DropPartition │    (batches)      │               │
//	└───────────────┘                   └───────────────┘
//
// # Concurrency
//
// All methods are safe for concurrent use. Reads take a shared lock and
// return copies; a partition keeps serving its vnode while a sender
// drains it.
//
// # Limitations
//
// Storage is purely in-memory and lost on process exit. Durable backends
// would implement the same surface behind the handoff transfer units; the
// coordinator never touches the store directly.
package storage
