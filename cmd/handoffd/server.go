package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/dreamware/atoll/internal/cluster"
	"github.com/dreamware/atoll/internal/handoff"
	"github.com/dreamware/atoll/internal/ring"
	"github.com/dreamware/atoll/internal/storage"
	"github.com/dreamware/atoll/internal/transport"
	"github.com/dreamware/atoll/internal/vnode"
)

// server wires the handoff manager, its collaborators, and the HTTP
// control surface together for one node.
type server struct {
	log       zerolog.Logger
	cfg       config
	mgr       *handoff.Manager
	ring      *ring.Ring
	store     *storage.PartitionStore
	receivers *transport.ReceiverPool

	mu     sync.RWMutex
	nodes  []cluster.NodeInfo
	vnodes map[storage.PartitionID]*vnode.Vnode
}

func newServer(cfg config, log zerolog.Logger) (*server, error) {
	store := storage.NewPartitionStore()
	rg := ring.New()
	events := ring.NewEvents()
	senders := transport.NewSenderPool(store, cfg.BatchSize, log)
	receivers := transport.NewReceiverPool(store, cfg.ReceiverIdleTimeout, log)

	mgr, err := handoff.NewManager(handoff.Config{
		Senders:        senders,
		Receivers:      receivers,
		Ring:           rg,
		RingEvents:     events,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	// Log ring transitions pushed by exclusion changes.
	updates := events.Subscribe(8)
	go func() {
		for snap := range updates {
			log.Debug().Int("owners", len(snap.Owners)).Msg("ring updated")
		}
	}()

	return &server{
		log:       log,
		cfg:       cfg,
		mgr:       mgr,
		ring:      rg,
		store:     store,
		receivers: receivers,
		vnodes:    make(map[storage.PartitionID]*vnode.Vnode),
	}, nil
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/ring", s.handleRing)
	mux.HandleFunc("/handoffs", s.handleHandoffs)
	mux.HandleFunc("/handoffs/outbound", s.handleOutbound)
	mux.HandleFunc("/handoffs/inbound", s.handleInbound)
	mux.HandleFunc("/handoffs/concurrency", s.handleConcurrency)
	mux.HandleFunc("/exclusions", s.handleExclusions)
	mux.HandleFunc("/handoff/receive", s.handleReceive)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == req.Node.ID })
	if idx >= 0 {
		s.nodes[idx] = req.Node
	} else {
		s.nodes = append(s.nodes, req.Node)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_ = json.NewEncoder(w).Encode(struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: s.nodes})
}

func (s *server) handleRing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.ring.Current())
}

// handleHandoffs serves the session status snapshot and the kill switch.
func (s *server) handleHandoffs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		infos, err := s.mgr.Status()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Handoffs []handoff.SessionInfo `json:"handoffs"`
		}{Handoffs: infos})

	case http.MethodDelete:
		if err := s.mgr.KillHandoffs(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Module    string `json:"module"`
		Partition uint64 `json:"partition"`
		NodeID    string `json:"node_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Module == "" || req.NodeID == "" {
		http.Error(w, "missing module/node_id", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	idx := slices.IndexFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == req.NodeID })
	var target cluster.NodeInfo
	if idx >= 0 {
		target = s.nodes[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		http.Error(w, "unknown node "+req.NodeID, http.StatusNotFound)
		return
	}

	vn := s.vnodeFor(storage.PartitionID{Module: req.Module, Index: req.Partition})
	if _, err := vn.RequestHandoff(s.mgr, target); err != nil {
		s.writeHandoffError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := s.mgr.AddInbound(handoff.ReceiverOptions{
		TLSEnabled:  s.cfg.ReceiverTLSEnabled,
		CertFile:    s.cfg.ReceiverTLSCertFile,
		KeyFile:     s.cfg.ReceiverTLSKeyFile,
		CAFile:      s.cfg.ReceiverTLSCAFile,
		IdleTimeout: s.cfg.ReceiverIdleTimeout,
	})
	if err != nil {
		s.writeHandoffError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleConcurrency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.mgr.SetConcurrency(req.Limit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExclusions manages the (module, partition) pairs barred from
// inbound handoff. The ring overlay is updated before the manager is
// notified so the forwarded snapshot already reflects the change.
func (s *server) handleExclusions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		module := r.URL.Query().Get("module")
		if module == "" {
			http.Error(w, "module required", http.StatusBadRequest)
			return
		}
		indices, err := s.mgr.Exclusions(module)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Module     string   `json:"module"`
			Exclusions []uint64 `json:"exclusions"`
		}{Module: module, Exclusions: indices})

	case http.MethodPost, http.MethodDelete:
		var req struct {
			Module    string `json:"module"`
			Partition uint64 `json:"partition"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Module == "" {
			http.Error(w, "module required", http.StatusBadRequest)
			return
		}
		if r.Method == http.MethodPost {
			s.ring.Exclude(req.Partition)
			s.mgr.AddExclusion(req.Module, req.Partition)
		} else {
			s.ring.Unexclude(req.Partition)
			s.mgr.RemoveExclusion(req.Module, req.Partition)
		}
		w.WriteHeader(http.StatusAccepted)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReceive accepts one batch of an inbound handoff stream and routes
// it to the receiving transfer unit.
func (s *server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch transport.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.receivers.Deliver(batch); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// vnodeFor returns the local vnode owning pid, creating it on first use.
func (s *server) vnodeFor(pid storage.PartitionID) *vnode.Vnode {
	s.mu.Lock()
	defer s.mu.Unlock()
	vn, ok := s.vnodes[pid]
	if !ok {
		vn = vnode.New(pid.Module, pid.Index, s.log)
		s.vnodes[pid] = vn
		go s.drainVnodeExits(vn)
	}
	return vn
}

// drainVnodeExits logs the exit notifications delivered to a vnode so
// its channel never fills up.
func (s *server) drainVnodeExits(vn *vnode.Vnode) {
	pid := vn.Partition()
	for reason := range vn.Exits() {
		evt := s.log.Info()
		if reason != nil {
			evt = s.log.Warn().Err(reason)
		}
		evt.Str("module", pid.Module).
			Str("partition", strconv.FormatUint(pid.Index, 10)).
			Msg("vnode received handoff exit")
	}
}

// writeHandoffError maps manager errors onto HTTP statuses: concurrency
// exhaustion is retryable (503), everything else is an environment fault.
func (s *server) writeHandoffError(w http.ResponseWriter, err error) {
	if errors.Is(err, handoff.ErrMaxConcurrency) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if errors.Is(err, handoff.ErrManagerClosed) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusBadGateway)
}
