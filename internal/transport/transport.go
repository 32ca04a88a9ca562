// Package transport implements the transfer units that actually move
// partition data between nodes during handoff, and the pools that
// supervise them. See doc.go for complete package documentation.
package transport

import (
	"errors"
	"sync"

	"github.com/dreamware/atoll/internal/storage"
)

// DefaultBatchSize is how many entries a sender pushes per request unless
// configured otherwise.
const DefaultBatchSize = 128

// BatchRequest is one chunk of a partition's data on the wire. The final
// batch carries Final=true; a sender with nothing to move still sends one
// empty final batch so the receiver learns the partition identity and
// completes.
type BatchRequest struct {
	Module    string          `json:"module"`
	Partition uint64          `json:"partition"`
	Entries   []storage.Entry `json:"entries"`
	Seq       int             `json:"seq"`
	Final     bool            `json:"final"`
}

// errTerminated is the exit reason when a unit is terminated without an
// explicit reason.
var errTerminated = errors.New("handoff transfer terminated")

// unit carries the lifecycle plumbing shared by senders and receivers:
// a Done channel closed exactly once on exit, the exit reason, and an
// idempotent asynchronous Terminate.
type unit struct {
	done     chan struct{}
	term     chan struct{}
	doneOnce sync.Once
	termOnce sync.Once

	mu     sync.Mutex
	err    error // exit reason; valid once done is closed
	reason error // requested termination reason
}

func newUnit() unit {
	return unit{
		done: make(chan struct{}),
		term: make(chan struct{}),
	}
}

// Done returns the channel closed when the unit has exited.
func (u *unit) Done() <-chan struct{} {
	return u.done
}

// Err reports why the unit exited. Valid only after Done is closed.
func (u *unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Terminate asks the unit to stop with the given reason. Non-blocking and
// idempotent; only the first reason wins.
func (u *unit) Terminate(reason error) {
	u.termOnce.Do(func() {
		if reason == nil {
			reason = errTerminated
		}
		u.mu.Lock()
		u.reason = reason
		u.mu.Unlock()
		close(u.term)
	})
}

// finish records the exit reason and closes Done. First caller wins.
func (u *unit) finish(err error) {
	u.doneOnce.Do(func() {
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
		close(u.done)
	})
}

// terminated returns the requested termination reason, or nil if
// Terminate has not been called.
func (u *unit) terminated() error {
	select {
	case <-u.term:
	default:
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reason
}
