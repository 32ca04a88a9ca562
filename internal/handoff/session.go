package handoff

import (
	"time"
)

// Direction distinguishes the two kinds of handoff session.
type Direction string

const (
	// DirectionOutbound means this node is streaming a partition's data
	// to a remote node.
	DirectionOutbound Direction = "outbound"

	// DirectionInbound means this node is accepting a partition's data
	// from a remote node.
	DirectionInbound Direction = "inbound"
)

// SessionState is the lifecycle state of a tracked session. Sessions are
// only ever tracked while running; a session that has exited is removed
// rather than transitioned, so the sole state is "active".
type SessionState string

// SessionStateActive is the state of every tracked session.
const SessionStateActive SessionState = "active"

// SessionID identifies what a session is moving and with whom.
//
// For inbound sessions the remote partition and node are unknown until
// the sender announces itself mid-stream; the manager records them as
// zero values and never rewrites the ID afterwards.
type SessionID struct {
	// Module names the storage module the partition belongs to.
	Module string `json:"module"`

	// Index is the partition index within the module's keyspace.
	Index uint64 `json:"index"`

	// Node is the remote node: the target for outbound sessions, empty
	// for inbound sessions.
	Node string `json:"node"`
}

// SessionInfo is the copy-out view of one tracked session, as returned by
// Manager.Status. It shares no state with the manager; Status maps are
// produced fresh by the transfer unit per call.
type SessionInfo struct {
	StartedAt time.Time         `json:"started_at"`
	Status    map[string]string `json:"status"`
	ID        SessionID         `json:"id"`
	Direction Direction         `json:"direction"`
	State     SessionState      `json:"state"`
}

// session is the manager's internal record of one admitted handoff.
// Records are created only on successful admission and removed only by
// the exit handler; there is no separate "complete" path.
type session struct {
	startedAt time.Time
	handle    Handle
	vnode     VnodeHandle // nil for inbound sessions
	id        SessionID
	direction Direction
}

// info produces the copy-out view of this session.
func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:        s.id,
		Direction: s.direction,
		State:     SessionStateActive,
		Status:    s.handle.Status(),
		StartedAt: s.startedAt,
	}
}
