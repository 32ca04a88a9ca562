// Package handoff implements the coordinator for partition data handoff.
// See doc.go for complete package documentation.
package handoff

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/atoll/internal/cluster"
)

// ErrMaxConcurrency is returned by AddOutbound and AddInbound when the
// configured concurrency limit is already reached. It is also the
// termination reason delivered to sessions evicted by a limit reduction.
// Callers are expected to retry later; the manager never retries on their
// behalf.
var ErrMaxConcurrency = errors.New("handoff concurrency limit reached")

// ErrManagerClosed is returned by every operation after Close.
var ErrManagerClosed = errors.New("handoff manager closed")

// DefaultConcurrency is the number of handoff sessions a node allows at
// once unless configured otherwise.
const DefaultConcurrency = 1

// Config assembles the manager's collaborators.
type Config struct {
	// Senders starts outbound transfer units. Required.
	Senders SenderSupervisor

	// Receivers starts inbound transfer units. Required.
	Receivers ReceiverSupervisor

	// Ring supplies ownership snapshots forwarded on exclusion changes.
	// Optional; without it exclusion changes produce no ring updates.
	Ring RingProvider

	// RingEvents receives the forwarded snapshots. Optional.
	RingEvents RingEvents

	// MaxConcurrency is the initial session limit. Values below 1 fall
	// back to DefaultConcurrency; the limit can still be lowered to zero
	// at runtime through SetConcurrency.
	MaxConcurrency int

	// Logger receives the manager's diagnostics. Abnormal session exits
	// are reported at error level.
	Logger zerolog.Logger
}

// Manager is the single long-lived coordinator for data handoff on this
// node. It throttles concurrent handoff sessions, tracks which
// (module, partition) pairs are excluded from receiving data, creates and
// tears down sessions on request, and reacts to session termination by
// informing the owning vnode and cleaning up its bookkeeping.
//
// All mutable state (the exclusion set, the admission-ordered session
// list, and the concurrency limit) is owned by one event-loop goroutine.
// Public methods marshal requests onto that loop and are therefore safe
// for concurrent use; each request is processed atomically with respect
// to every other.
//
// One Manager exists per process, created at startup and torn down with
// Close at shutdown. There is no package-level instance: callers hold an
// explicit reference.
type Manager struct {
	senders    SenderSupervisor
	receivers  ReceiverSupervisor
	ring       RingProvider
	ringEvents RingEvents
	log        zerolog.Logger

	requests chan func()
	exits    chan exitNotice
	quit     chan struct{}
	stopped  chan struct{}

	closeOnce sync.Once

	// Everything below is owned exclusively by the run loop. No other
	// goroutine reads or writes these fields.
	exclusions exclusionSet
	sessions   []*session // admission order; eviction keeps the prefix
	limit      int
}

// exitNotice is the crash monitor's report that a transfer unit exited.
type exitNotice struct {
	handle Handle
	reason error // nil means normal completion
}

// NewManager creates a manager and starts its event loop.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Senders == nil {
		return nil, errors.New("handoff: sender supervisor is required")
	}
	if cfg.Receivers == nil {
		return nil, errors.New("handoff: receiver supervisor is required")
	}

	limit := cfg.MaxConcurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}

	m := &Manager{
		senders:    cfg.Senders,
		receivers:  cfg.Receivers,
		ring:       cfg.Ring,
		ringEvents: cfg.RingEvents,
		log:        cfg.Logger,
		requests:   make(chan func(), 128),
		exits:      make(chan exitNotice),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		exclusions: make(exclusionSet),
		limit:      limit,
	}
	go m.run()
	return m, nil
}

// Close stops the event loop. In-flight transfer units are not terminated;
// they belong to their supervisors and keep running until they finish or
// the process exits. All subsequent operations return ErrManagerClosed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
	<-m.stopped
}

// AddOutbound admits a new outbound handoff session streaming the
// (module, index) partition to the target node, on behalf of the owning
// vnode. The admission check and the session registration are a single
// atomic step in the manager's event loop.
//
// Returns ErrMaxConcurrency when no capacity is available; a failure to
// spawn the transfer unit propagates as a hard error.
func (m *Manager) AddOutbound(module string, index uint64, target cluster.NodeInfo, vn VnodeHandle) (Handle, error) {
	var (
		h   Handle
		err error
	)
	if derr := m.do(func() { h, err = m.addOutbound(module, index, target, vn) }); derr != nil {
		return nil, derr
	}
	return h, err
}

// AddInbound admits a new inbound handoff session configured with the
// given transport options. The remote module, partition and node are
// unknown at admission time and recorded as unset.
//
// Returns ErrMaxConcurrency when no capacity is available; a failure to
// spawn the transfer unit propagates as a hard error.
func (m *Manager) AddInbound(opts ReceiverOptions) (Handle, error) {
	var (
		h   Handle
		err error
	)
	if derr := m.do(func() { h, err = m.addInbound(opts) }); derr != nil {
		return nil, derr
	}
	return h, err
}

// Status returns a point-in-time snapshot of all tracked sessions in
// admission order. Purely a read; no side effects.
func (m *Manager) Status() ([]SessionInfo, error) {
	var infos []SessionInfo
	if err := m.do(func() { infos = m.status() }); err != nil {
		return nil, err
	}
	return infos, nil
}

// SetConcurrency stores a new session limit for future admission
// decisions. If the new limit is below the number of currently tracked
// sessions, the most-recently-admitted excess sessions are sent a forced
// termination with reason ErrMaxConcurrency; their records remain tracked
// until the exit notifications arrive, so the usual exit path (including
// vnode notification) still runs for them.
func (m *Manager) SetConcurrency(limit int) error {
	if limit < 0 {
		return fmt.Errorf("handoff: concurrency limit must be non-negative, got %d", limit)
	}
	return m.do(func() { m.setConcurrency(limit) })
}

// KillHandoffs force-terminates every tracked session. Equivalent to
// SetConcurrency(0).
func (m *Manager) KillHandoffs() error {
	return m.do(func() { m.setConcurrency(0) })
}

// AddExclusion bars the (module, index) pair from receiving handoff data.
// Idempotent. The current ring snapshot is forwarded to the ring-event
// collaborator so downstream ownership computation reflects the exclusion
// immediately. Fire-and-forget: there is no reply.
func (m *Manager) AddExclusion(module string, index uint64) {
	m.notify(func() { m.addExclusion(module, index) })
}

// RemoveExclusion lifts the exclusion on the (module, index) pair if
// present. Idempotent, no side effects, fire-and-forget.
func (m *Manager) RemoveExclusion(module string, index uint64) {
	m.notify(func() { m.exclusions.remove(module, index) })
}

// Exclusions returns the sorted partition indices currently excluded for
// module. The result reflects some consistent prior state; concurrent
// mutations may or may not be visible.
func (m *Manager) Exclusions(module string) ([]uint64, error) {
	var indices []uint64
	if err := m.do(func() { indices = m.exclusions.forModule(module) }); err != nil {
		return nil, err
	}
	return indices, nil
}

// do runs fn inside the event loop and waits for it to complete.
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.requests <- func() { fn(); close(done) }:
	case <-m.quit:
		return ErrManagerClosed
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrManagerClosed
		}
	}
}

// notify enqueues fn for the event loop without waiting for a reply.
func (m *Manager) notify(fn func()) {
	select {
	case m.requests <- fn:
	case <-m.quit:
	}
}

// run is the event loop. It is the only goroutine that touches the
// manager's state, processing one request or exit notice at a time in
// arrival order.
func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case fn := <-m.requests:
			fn()
		case ex := <-m.exits:
			m.handleExit(ex)
		case <-m.quit:
			return
		}
	}
}

// watch is the per-session crash monitor: one goroutine that waits for
// the transfer unit to exit, for any reason, and forwards the exit into
// the event loop.
func (m *Manager) watch(h Handle) {
	select {
	case <-h.Done():
	case <-m.quit:
		return
	}
	select {
	case m.exits <- exitNotice{handle: h, reason: h.Err()}:
	case <-m.quit:
	}
}

// capacityAvailable reports whether a new session may be admitted. The
// counts come from the supervisors' live unit counts rather than the
// manager's own list, so a unit that died outside the manager's knowledge
// frees capacity immediately.
func (m *Manager) capacityAvailable() bool {
	return m.senders.Active()+m.receivers.Active() < m.limit
}

func (m *Manager) addOutbound(module string, index uint64, target cluster.NodeInfo, vn VnodeHandle) (Handle, error) {
	if !m.capacityAvailable() {
		return nil, ErrMaxConcurrency
	}

	h, err := m.senders.StartSender(target, module, index, vn)
	if err != nil {
		return nil, fmt.Errorf("start outbound handoff %s/%d -> %s: %w", module, index, target.ID, err)
	}

	m.track(&session{
		id:        SessionID{Module: module, Index: index, Node: target.ID},
		direction: DirectionOutbound,
		handle:    h,
		vnode:     vn,
		startedAt: time.Now(),
	})

	m.log.Info().
		Str("module", module).
		Uint64("partition", index).
		Str("target", target.ID).
		Msg("outbound handoff started")
	return h, nil
}

func (m *Manager) addInbound(opts ReceiverOptions) (Handle, error) {
	if !m.capacityAvailable() {
		return nil, ErrMaxConcurrency
	}

	h, err := m.receivers.StartReceiver(opts)
	if err != nil {
		return nil, fmt.Errorf("start inbound handoff: %w", err)
	}

	// Remote module, partition and node are unknown until the sender
	// announces itself; the ID stays unset.
	m.track(&session{
		direction: DirectionInbound,
		handle:    h,
		startedAt: time.Now(),
	})

	m.log.Info().Msg("inbound handoff started")
	return h, nil
}

// track appends the session in admission order and registers its crash
// monitor.
func (m *Manager) track(s *session) {
	m.sessions = append(m.sessions, s)
	go m.watch(s.handle)
}

func (m *Manager) status() []SessionInfo {
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info())
	}
	return infos
}

func (m *Manager) setConcurrency(limit int) {
	m.limit = limit
	if len(m.sessions) <= limit {
		return
	}

	// Keep the oldest-admitted prefix, evict the rest. The evicted
	// records stay in the list until their exit notifications arrive so
	// that the termination reason reaches the owning vnode through the
	// normal exit path.
	for _, s := range m.sessions[limit:] {
		m.log.Info().
			Str("direction", string(s.direction)).
			Str("module", s.id.Module).
			Uint64("partition", s.id.Index).
			Msg("terminating handoff session over concurrency limit")
		s.handle.Terminate(ErrMaxConcurrency)
	}
}

func (m *Manager) addExclusion(module string, index uint64) {
	m.exclusions.add(module, index)

	if m.ring == nil || m.ringEvents == nil {
		return
	}
	m.ringEvents.RingUpdate(m.ring.Current())
}

// handleExit consumes a termination notice for a monitored session. An
// unknown handle is ignored: the session was already removed, or the
// notice is stale.
func (m *Manager) handleExit(ex exitNotice) {
	idx := -1
	for i, s := range m.sessions {
		if s.handle == ex.handle {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s := m.sessions[idx]

	if ex.reason != nil {
		m.log.Error().
			Err(ex.reason).
			Str("direction", string(s.direction)).
			Str("module", s.id.Module).
			Uint64("partition", s.id.Index).
			Msg("handoff session terminated abnormally")
	} else {
		m.log.Info().
			Str("direction", string(s.direction)).
			Str("module", s.id.Module).
			Uint64("partition", s.id.Index).
			Msg("handoff session completed")
	}

	if s.vnode != nil {
		m.deliverExit(s.vnode, ex.reason)
	}

	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
}

// deliverExit notifies the owning vnode that its handoff ended.
// Best-effort: a panicking or otherwise dead target must not take the
// manager down with it.
func (m *Manager) deliverExit(vn VnodeHandle, reason error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn().
				Interface("panic", r).
				Msg("vnode exit notification failed")
		}
	}()
	vn.HandoffExit(reason)
}
