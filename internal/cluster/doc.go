// Package cluster provides the membership primitives and HTTP/JSON
// helpers the atoll nodes use to talk to each other.
//
// # Overview
//
// Every node in an atoll cluster runs the same daemon. Nodes learn about
// their peers through explicit registration and exchange partition data
// during handoff over plain HTTP. This package holds the pieces both
// sides of that conversation share: the node identity type, the
// registration request, and the JSON request helpers.
//
// # Architecture
//
// Nodes form a flat peer group; there is no dedicated coordinator
// process. Each node keeps its own membership list, populated by
// /register calls:
//
//	┌───────────┐  register   ┌───────────┐
//	│  Node 1   │────────────▶│  Node 2   │
//	│           │◀────────────│           │
//	│ kv: [0,1] │   handoff   │ kv: [2,3] │
//	└───────────┘             └───────────┘
//
// # Communication Protocol
//
// All inter-node traffic is HTTP/JSON:
//
// Node Registration (POST /register):
//   - A node announces its identity and listen address to a peer
//   - Re-registration with the same ID updates the stored address
//
// Handoff Transfer (POST /handoff/receive):
//   - The sending node streams a partition's entries in batches
//   - The receiving node routes each batch to an inbound transfer unit
//
// # Failure Handling
//
// Requests carry a context and the shared client enforces a 5s timeout,
// so a dead peer fails a transfer quickly instead of wedging it. Retry
// policy is left to the callers; the handoff manager surfaces transfer
// failures through its exit notifications.
//
// # See Also
//
// Related packages:
//   - internal/handoff: The handoff manager and its admission control
//   - internal/transport: The transfer units that move partition data
//   - internal/storage: The partition-namespaced key-value store
package cluster
