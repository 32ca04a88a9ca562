// Package handoff implements the coordinator for partition data handoff in
// an atoll cluster: the process that moves ownership of a partition's data
// from one node to another during resizing, rebalancing, or recovery.
//
// # Overview
//
// Every node runs exactly one Manager. It does not move data itself; the
// actual byte streaming is the job of transfer units spawned by the sender
// and receiver supervisors. The manager's concerns are control-plane only:
//
//   - Throttling how many handoff sessions may run at once on this node
//   - Tracking which (module, partition) pairs are excluded from
//     receiving handoff data
//   - Creating and tearing down sessions on request
//   - Reacting to session termination by informing the owning vnode and
//     cleaning up bookkeeping
//
// # Architecture
//
//	┌───────────────────────────────────────────────┐
//	│               HANDOFF MANAGER                  │
//	├───────────────────────────────────────────────┤
//	│                                               │
//	│   callers ──requests──┐    ┌──exit notices──┐ │
//	│                       ▼    ▼                │ │
//	│              ┌──────────────────┐           │ │
//	│              │    event loop    │      watchers
//	│              │  (sole owner of  │           │ │
//	│              │   all state)     │           │ │
//	│              └──────────────────┘           │ │
//	│                │         │                  │ │
//	│        exclusion set   session list ────────┘ │
//	│        concurrency limit                      │
//	│                                               │
//	└───────────────────────────────────────────────┘
//	         │                        │
//	         ▼                        ▼
//	  SenderSupervisor         ReceiverSupervisor
//	  (outbound units)         (inbound units)
//
// # Concurrency Model
//
// The manager is an actor: one event-loop goroutine owns the exclusion
// set, the admission-ordered session list, and the concurrency limit.
// Public methods marshal closures onto the loop's request channel and are
// processed strictly one at a time in arrival order. Synchronous
// operations (AddOutbound, AddInbound, Status, SetConcurrency,
// KillHandoffs, Exclusions) block the caller until the loop replies;
// notifications (AddExclusion, RemoveExclusion) enqueue and return.
//
// Transfer units run as independent goroutines outside the loop. The
// manager never blocks on their progress; instead it registers one
// watcher goroutine per session that waits on the unit's Done channel and
// forwards the exit, whatever its cause, into the loop. That exit path is
// the only way session records are removed: there is no explicit
// "complete" call, and forced termination (a limit reduction) merely
// sends the unit a termination signal and lets the follow-up exit notice
// finish the teardown.
//
// # Admission
//
// Capacity is computed from the supervisors' live unit counts, not the
// manager's own session list. A unit that died without the manager's
// knowledge therefore frees capacity immediately, while an evicted
// session whose exit notice has not yet arrived transiently over-counts.
// The trade is deliberate: the exit-notification path stays correct.
//
// # Errors
//
// ErrMaxConcurrency is the single recoverable error, returned when the
// limit is reached; callers retry later. Unit crashes are not manager
// errors: they are logged if abnormal and surfaced only to the owning
// vnode as an exit notification. A supervisor spawn failure indicates an
// environment fault and propagates to the requesting caller.
package handoff
