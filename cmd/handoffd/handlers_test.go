package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/atoll/internal/cluster"
	"github.com/dreamware/atoll/internal/handoff"
	"github.com/dreamware/atoll/internal/ring"
	"github.com/dreamware/atoll/internal/storage"
	"github.com/dreamware/atoll/internal/transport"
)

func newTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()

	cfg := defaultConfig()
	cfg.NodeID = "node-local"
	cfg.MaxConcurrency = 2
	cfg.BatchSize = 4

	s, err := newServer(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.mgr.Close() })

	mux := http.NewServeMux()
	s.routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterAndListNodes(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/register", cluster.RegisterRequest{
		Node: cluster.NodeInfo{ID: "node-2", Addr: "10.0.0.2:8080"},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Re-registering the same ID updates the address in place.
	resp = doJSON(t, http.MethodPost, ts.URL+"/register", cluster.RegisterRequest{
		Node: cluster.NodeInfo{ID: "node-2", Addr: "10.0.0.3:8080"},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var listing struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/nodes", nil)
	decodeJSON(t, resp, &listing)
	require.Len(t, listing.Nodes, 1)
	assert.Equal(t, "10.0.0.3:8080", listing.Nodes[0].Addr)
}

func TestRegisterRejectsIncompleteNode(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/register", cluster.RegisterRequest{
		Node: cluster.NodeInfo{ID: "node-2"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRingEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.ring.SetOwner(1, "node-local"))
	require.NoError(t, s.ring.SetOwner(2, "node-2"))

	var snap ring.Snapshot
	resp := doJSON(t, http.MethodGet, ts.URL+"/ring", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &snap)
	assert.Len(t, snap.Owners, 2)
}

func TestHandoffStatusEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	var status struct {
		Handoffs []handoff.SessionInfo `json:"handoffs"`
	}
	resp := doJSON(t, http.MethodGet, ts.URL+"/handoffs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &status)
	assert.Empty(t, status.Handoffs)
}

func TestKillHandoffs(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodDelete, ts.URL+"/handoffs", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOutboundUnknownNode(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/handoffs/outbound", map[string]any{
		"module": "kv", "partition": 0, "node_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOutboundStartsTransfer(t *testing.T) {
	s, ts := newTestServer(t)

	// A peer that accepts every batch.
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer peer.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/register", cluster.RegisterRequest{
		Node: cluster.NodeInfo{ID: "node-2", Addr: peer.URL},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	s.store.Put(storage.PartitionID{Module: "kv", Index: 0}, "k", []byte("v"))

	resp = doJSON(t, http.MethodPost, ts.URL+"/handoffs/outbound", map[string]any{
		"module": "kv", "partition": 0, "node_id": "node-2",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The transfer completes and drops the local partition.
	require.Eventually(t, func() bool {
		return s.store.Stats(storage.PartitionID{Module: "kv", Index: 0}).Keys == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOutboundOverCapacity(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPut, ts.URL+"/handoffs/concurrency", map[string]int{"limit": 0})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/register", cluster.RegisterRequest{
		Node: cluster.NodeInfo{ID: "node-2", Addr: "10.0.0.2:8080"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/handoffs/outbound", map[string]any{
		"module": "kv", "partition": 0, "node_id": "node-2",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConcurrencyEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPut, ts.URL+"/handoffs/concurrency", map[string]int{"limit": 3})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, ts.URL+"/handoffs/concurrency", map[string]int{"limit": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/handoffs/concurrency", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExclusionsAPI(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/exclusions", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/exclusions", map[string]any{
		"module": "kv", "partition": 2,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var listing struct {
		Module     string   `json:"module"`
		Exclusions []uint64 `json:"exclusions"`
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/exclusions?module=kv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &listing)
	assert.Equal(t, []uint64{2}, listing.Exclusions)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/exclusions", map[string]any{
		"module": "kv", "partition": 2,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/exclusions?module=kv", nil)
	decodeJSON(t, resp, &listing)
	assert.Empty(t, listing.Exclusions)
}

func TestReceiveWithoutInboundSession(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/handoff/receive", transport.BatchRequest{
		Module: "kv", Partition: 1, Final: true,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInboundReceiveFlow(t *testing.T) {
	s, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/handoffs/inbound", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/handoff/receive", transport.BatchRequest{
		Module:    "kv",
		Partition: 1,
		Entries:   []storage.Entry{{Key: "a", Value: []byte("1")}},
		Final:     true,
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		return s.store.Stats(storage.PartitionID{Module: "kv", Index: 1}).Keys == 1
	}, 2*time.Second, 10*time.Millisecond)
}
