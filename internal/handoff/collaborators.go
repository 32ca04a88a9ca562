package handoff

import (
	"time"

	"github.com/dreamware/atoll/internal/cluster"
	"github.com/dreamware/atoll/internal/ring"
)

// Handle is the manager's reference to one concurrently-running transfer
// unit. The unit owns its own execution; the handle exists so the manager
// can monitor for exit, request termination, and pass progress through to
// status reports.
//
// Implementations must be safe for concurrent use: the manager calls
// Status from its event loop while the unit is running, and Terminate may
// race with the unit's own completion.
type Handle interface {
	// Done returns a channel that is closed when the transfer unit has
	// exited, for any reason. This is the manager's only crash monitor.
	Done() <-chan struct{}

	// Err reports why the unit exited. Valid only after Done is closed.
	// nil means normal completion.
	Err() error

	// Terminate asks the unit to stop with the given reason. It does not
	// block and does not wait for the unit to comply; the exit is
	// observed through Done like any other. Calling Terminate more than
	// once, or after the unit has exited, is harmless.
	Terminate(reason error)

	// Status returns the unit's self-reported progress. The manager does
	// not interpret it beyond passing it through in status reports.
	Status() map[string]string
}

// SenderSupervisor starts outbound transfer units and reports how many of
// its units are currently live. The live count is authoritative for
// admission decisions: a unit that died outside the manager's knowledge
// must no longer be counted.
type SenderSupervisor interface {
	// StartSender spawns a unit that streams the (module, index)
	// partition's data to the target node. The vnode handle travels with
	// the unit for diagnostics only; exit notification to the vnode is
	// the manager's job. A spawn failure is an environment fault and is
	// returned to the caller unmodified in meaning.
	StartSender(target cluster.NodeInfo, module string, index uint64, vn VnodeHandle) (Handle, error)

	// Active returns the number of currently live sender units.
	Active() int
}

// ReceiverSupervisor starts inbound transfer units.
type ReceiverSupervisor interface {
	// StartReceiver spawns a unit that accepts one inbound handoff
	// stream, configured with the given transport options.
	StartReceiver(opts ReceiverOptions) (Handle, error)

	// Active returns the number of currently live receiver units.
	Active() int
}

// ReceiverOptions carries transport and security parameters for an
// inbound transfer unit. The manager passes them through untouched.
type ReceiverOptions struct {
	// TLSEnabled requests an encrypted inbound stream.
	TLSEnabled bool

	// CertFile, KeyFile and CAFile locate the TLS material when
	// TLSEnabled is set.
	CertFile string
	KeyFile  string
	CAFile   string

	// IdleTimeout bounds how long the unit waits between inbound batches
	// before giving up. Zero means the supervisor's default.
	IdleTimeout time.Duration
}

// RingEvents receives ownership snapshots whenever the exclusion set
// grows, so downstream ownership computation reflects the exclusion
// immediately.
type RingEvents interface {
	RingUpdate(snap ring.Snapshot)
}

// RingProvider supplies the current partition-ownership snapshot that is
// forwarded on exclusion changes.
type RingProvider interface {
	Current() ring.Snapshot
}

// VnodeHandle is the weak back-reference to the partition-owning process
// that requested an outbound handoff. The manager uses it for exactly one
// thing: delivering the exit notification when the session's transfer
// unit terminates.
//
// Implementations must not block; delivery is best-effort and a dead or
// unresponsive vnode must never stall the manager.
type VnodeHandle interface {
	HandoffExit(reason error)
}
