package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dreamware/atoll/internal/cluster"
	"github.com/dreamware/atoll/internal/handoff"
	"github.com/dreamware/atoll/internal/storage"
)

// SenderPool starts and supervises outbound transfer units. It implements
// handoff.SenderSupervisor: its live unit count is what the manager's
// admission check consults.
type SenderPool struct {
	store     *storage.PartitionStore
	log       zerolog.Logger
	batchSize int

	mu     sync.Mutex
	active map[*sendUnit]struct{}
}

// NewSenderPool creates a pool that drains partitions from store in
// batches of batchSize entries. A batchSize below 1 falls back to
// DefaultBatchSize.
func NewSenderPool(store *storage.PartitionStore, batchSize int, log zerolog.Logger) *SenderPool {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &SenderPool{
		store:     store,
		log:       log,
		batchSize: batchSize,
		active:    make(map[*sendUnit]struct{}),
	}
}

// StartSender spawns a unit that streams the (module, index) partition to
// the target node's receive endpoint. The returned handle is live
// immediately; the transfer runs in its own goroutine.
func (p *SenderPool) StartSender(target cluster.NodeInfo, module string, index uint64, vn handoff.VnodeHandle) (handoff.Handle, error) {
	if target.Addr == "" {
		return nil, fmt.Errorf("target node %q has no address", target.ID)
	}

	u := &sendUnit{
		unit:   newUnit(),
		id:     storage.PartitionID{Module: module, Index: index},
		target: target,
		url:    receiveURL(target.Addr),
	}
	u.total = int64(len(p.store.Keys(u.id)))

	p.mu.Lock()
	p.active[u] = struct{}{}
	p.mu.Unlock()

	go p.run(u)
	return u, nil
}

// Active returns the number of currently live sender units.
func (p *SenderPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// run drives one outbound transfer to completion, termination, or error.
// The unit leaves the active set before Done closes, so pool counts never
// lag behind handle state.
func (p *SenderPool) run(u *sendUnit) {
	var exitErr error
	defer func() {
		p.mu.Lock()
		delete(p.active, u)
		p.mu.Unlock()
		u.finish(exitErr)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-u.term:
			cancel()
		case <-u.done:
		}
	}()

	entries := p.store.Entries(u.id)
	atomic.StoreInt64(&u.total, int64(len(entries)))

	seq := 0
	start := 0
	for {
		if reason := u.terminated(); reason != nil {
			exitErr = reason
			return
		}

		end := min(start+p.batchSize, len(entries))
		req := BatchRequest{
			Module:    u.id.Module,
			Partition: u.id.Index,
			Entries:   entries[start:end],
			Seq:       seq,
			Final:     end == len(entries),
		}
		if err := cluster.PostJSON(ctx, u.url, req, nil); err != nil {
			// A termination request cancels the in-flight post; report
			// the requested reason, not the transport error it caused.
			if reason := u.terminated(); reason != nil {
				exitErr = reason
				return
			}
			p.log.Error().
				Err(err).
				Str("module", u.id.Module).
				Uint64("partition", u.id.Index).
				Str("target", u.target.ID).
				Msg("outbound handoff batch failed")
			exitErr = fmt.Errorf("push batch %d to %s: %w", seq, u.target.ID, err)
			return
		}

		atomic.AddInt64(&u.sent, int64(end-start))
		seq++
		if end == len(entries) {
			break
		}
		start = end
	}

	dropped := p.store.DropPartition(u.id)
	p.log.Info().
		Str("module", u.id.Module).
		Uint64("partition", u.id.Index).
		Str("target", u.target.ID).
		Int("keys", dropped).
		Msg("outbound handoff complete, partition dropped")
}

// sendUnit is one outbound transfer: a goroutine pushing a partition's
// entries to the destination node.
type sendUnit struct {
	unit
	id     storage.PartitionID
	target cluster.NodeInfo
	url    string
	sent   int64 // atomic
	total  int64 // atomic
}

// Status reports progress for the manager's status passthrough.
func (u *sendUnit) Status() map[string]string {
	return map[string]string{
		"module":    u.id.Module,
		"partition": strconv.FormatUint(u.id.Index, 10),
		"target":    u.target.ID,
		"sent":      strconv.FormatInt(atomic.LoadInt64(&u.sent), 10),
		"total":     strconv.FormatInt(atomic.LoadInt64(&u.total), 10),
	}
}

// receiveURL builds the destination receive endpoint from a node address,
// accepting both host:port and full URL forms.
func receiveURL(addr string) string {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	return strings.TrimRight(url, "/") + "/handoff/receive"
}
