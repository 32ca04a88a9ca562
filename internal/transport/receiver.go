package transport

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/atoll/internal/handoff"
	"github.com/dreamware/atoll/internal/storage"
)

// DefaultIdleTimeout bounds how long an inbound unit waits between
// batches before giving up on its sender.
const DefaultIdleTimeout = 2 * time.Minute

// ErrNoReceiver is returned by Deliver when no inbound session is
// accepting data for the batch's partition.
var ErrNoReceiver = errors.New("no inbound handoff session accepting data")

// errReceiveIdle is the exit reason for a receiver whose sender went
// quiet.
var errReceiveIdle = errors.New("inbound handoff idle timeout")

// ReceiverPool starts and supervises inbound transfer units and routes
// arriving batches to them. It implements handoff.ReceiverSupervisor.
//
// An inbound unit does not know which partition it will receive until the
// first batch arrives: Deliver binds each unit to the partition of the
// first batch routed to it, and subsequent batches for that partition go
// to the same unit.
type ReceiverPool struct {
	store       *storage.PartitionStore
	log         zerolog.Logger
	idleTimeout time.Duration

	mu     sync.Mutex
	active []*recvUnit // admission order; first unbound unit gets bound
}

// NewReceiverPool creates a pool writing received batches into store. An
// idleTimeout below or equal to zero falls back to DefaultIdleTimeout.
func NewReceiverPool(store *storage.PartitionStore, idleTimeout time.Duration, log zerolog.Logger) *ReceiverPool {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &ReceiverPool{
		store:       store,
		log:         log,
		idleTimeout: idleTimeout,
	}
}

// StartReceiver spawns a unit that accepts one inbound handoff stream.
func (p *ReceiverPool) StartReceiver(opts handoff.ReceiverOptions) (handoff.Handle, error) {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = p.idleTimeout
	}

	u := &recvUnit{
		unit:    newUnit(),
		opts:    opts,
		batches: make(chan BatchRequest, 16),
		idle:    idle,
	}

	p.mu.Lock()
	p.active = append(p.active, u)
	p.mu.Unlock()

	go p.run(u)
	return u, nil
}

// Active returns the number of currently live receiver units.
func (p *ReceiverPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Deliver routes one arriving batch to the inbound unit handling its
// partition, binding an unbound unit if this is the stream's first batch.
// Returns ErrNoReceiver when no unit can take the batch.
func (p *ReceiverPool) Deliver(b BatchRequest) error {
	pid := storage.PartitionID{Module: b.Module, Index: b.Partition}

	p.mu.Lock()
	var target, unbound *recvUnit
	for _, u := range p.active {
		bound := u.boundID()
		switch {
		case bound != nil && *bound == pid:
			target = u
		case bound == nil && unbound == nil:
			unbound = u
		}
		if target != nil {
			break
		}
	}
	if target == nil && unbound != nil {
		unbound.bind(pid)
		target = unbound
	}
	p.mu.Unlock()

	if target == nil {
		return ErrNoReceiver
	}
	select {
	case target.batches <- b:
		return nil
	case <-target.done:
		return ErrNoReceiver
	}
}

// run drives one inbound transfer until the final batch, termination, or
// an idle timeout. The unit leaves the active set before Done closes, so
// pool counts never lag behind handle state.
func (p *ReceiverPool) run(u *recvUnit) {
	var exitErr error
	defer func() {
		p.mu.Lock()
		for i, other := range p.active {
			if other == u {
				p.active = append(p.active[:i], p.active[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		u.finish(exitErr)
	}()

	timer := time.NewTimer(u.idle)
	defer timer.Stop()

	for {
		select {
		case <-u.term:
			exitErr = u.terminated()
			return

		case b := <-u.batches:
			p.store.PutBatch(storage.PartitionID{Module: b.Module, Index: b.Partition}, b.Entries)
			atomic.AddInt64(&u.received, int64(len(b.Entries)))
			if b.Final {
				p.log.Info().
					Str("module", b.Module).
					Uint64("partition", b.Partition).
					Int64("keys", atomic.LoadInt64(&u.received)).
					Msg("inbound handoff complete")
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(u.idle)

		case <-timer.C:
			exitErr = errReceiveIdle
			return
		}
	}
}

// recvUnit is one inbound transfer: a goroutine draining routed batches
// into the local store.
type recvUnit struct {
	unit
	opts    handoff.ReceiverOptions
	batches chan BatchRequest
	idle    time.Duration

	idMu     sync.Mutex
	id       *storage.PartitionID // nil until the first batch binds it
	received int64                // atomic
}

// boundID returns the partition this unit is bound to, or nil.
func (u *recvUnit) boundID() *storage.PartitionID {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	return u.id
}

// bind fixes the partition this unit receives. Called once by Deliver.
func (u *recvUnit) bind(pid storage.PartitionID) {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	u.id = &pid
}

// Status reports progress for the manager's status passthrough. Module
// and partition appear once the first batch has bound the unit.
func (u *recvUnit) Status() map[string]string {
	status := map[string]string{
		"received": strconv.FormatInt(atomic.LoadInt64(&u.received), 10),
	}
	if u.opts.TLSEnabled {
		status["tls"] = "enabled"
	}
	if id := u.boundID(); id != nil {
		status["module"] = id.Module
		status["partition"] = strconv.FormatUint(id.Index, 10)
	}
	return status
}
