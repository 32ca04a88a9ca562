// Package transport moves partition data between nodes during handoff.
//
// # Overview
//
// A transfer unit is one goroutine moving one partition's data in one
// direction. Senders drain the local PartitionStore and push JSON batches
// to the destination's /handoff/receive endpoint; receivers accept routed
// batches into the local store until the final batch arrives. Units are
// supervised by SenderPool and ReceiverPool, which implement the handoff
// manager's supervisor interfaces and keep the live counts its admission
// checks consult.
//
// # Lifecycle
//
// Every unit exposes the handoff.Handle surface: Done closes exactly once
// on exit, Err carries the exit reason (nil for normal completion), and
// Terminate requests asynchronous cancellation. The pools deregister a
// unit the moment its goroutine returns, so Active reflects reality even
// for units the handoff manager has not yet cleaned up.
//
// The handoff coordinator never imports this package; it sees only the
// interfaces wired in at daemon startup.
package transport
