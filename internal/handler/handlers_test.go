package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chronodb/metasrv/internal/directory"
	"github.com/chronodb/metasrv/internal/heartbeat"
	"github.com/chronodb/metasrv/internal/lease"
	"github.com/chronodb/metasrv/internal/model"
	"github.com/chronodb/metasrv/internal/selector"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	handlers *Handlers
	registry *lease.Registry
	dir      *directory.MemoryDirectory
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()

	f.registry = lease.NewRegistry(logger, lease.WithClock(func() time.Time { return f.now }))
	f.dir = directory.NewMemoryDirectory(logger)
	svc := heartbeat.NewService(f.registry, f.dir, 10*time.Second, nil, logger)
	sel := selector.NewLoadBasedSelector(f.registry, nil, logger)

	f.handlers = NewHandlers(svc, sel, f.registry, f.dir, Options{
		TTL:             10 * time.Second,
		DefaultReplicas: 1,
	}, logger)
	return f
}

func (f *fixture) beat(t *testing.T, ns model.Namespace, id model.PeerID, regions int64) {
	t.Helper()
	_, err := f.handlers.heartbeats.Handle(context.Background(), model.Heartbeat{
		Namespace: ns,
		Peer:      model.Peer{ID: id, Addr: "10.0.0.1:4001"},
		Stats:     model.LoadStats{RegionCount: regions},
	})
	require.NoError(t, err)
}

func withNamespace(r *http.Request, ns string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"ns": ns})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHeartbeat_Accepted(t *testing.T) {
	f := newFixture(t)
	body := `{"cluster_id":1,"peer":{"id":7,"addr":"10.0.0.7:4001"},"stats":{"region_count":4}}`

	rec := httptest.NewRecorder()
	f.handlers.Heartbeat(rec, httptest.NewRequest(http.MethodPost, "/v1/heartbeat", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HeartbeatResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Accepted)
	assert.Equal(t, int64(10000), resp.TTLMs)

	l, ok := f.registry.Get(1, 7)
	require.True(t, ok)
	assert.Equal(t, int64(4), l.Stats.RegionCount)
}

func TestHeartbeat_StaleIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 7, 0)

	body := `{"cluster_id":1,"peer":{"id":7,"addr":"10.0.0.1:4001"},"stats":{}}`
	rec := httptest.NewRecorder()
	f.handlers.Heartbeat(rec, httptest.NewRequest(http.MethodPost, "/v1/heartbeat", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HeartbeatResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Accepted)
}

func TestHeartbeat_BadRequests(t *testing.T) {
	f := newFixture(t)

	for name, body := range map[string]string{
		"malformed":    `{"cluster_id":`,
		"missing addr": `{"cluster_id":1,"peer":{"id":7},"stats":{}}`,
		"negative cpu": `{"cluster_id":1,"peer":{"id":7,"addr":"a:1"},"stats":{"cpu_usage":-1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/heartbeat", bytes.NewBufferString(body))
			req.Header.Set("X-Request-ID", "req-1")
			f.handlers.Heartbeat(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, "INVALID_ARGUMENT", resp.ErrorCode)
			assert.Equal(t, "req-1", resp.RequestID)
		})
	}
}

func TestSelect_OrdersByLoad(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 1, 5)
	f.beat(t, 1, 2, 2)
	f.beat(t, 1, 3, 9)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/1/select", bytes.NewBufferString(`{"replicas":2}`))
	f.handlers.Select(rec, withNamespace(req, "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SelectResponse
	decode(t, rec, &resp)
	assert.Equal(t, "LoadBased", resp.Selector)
	assert.Equal(t, 2, resp.Requested)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, model.PeerID(2), resp.Peers[0].ID)
	assert.Equal(t, model.PeerID(1), resp.Peers[1].ID)
	assert.Empty(t, resp.ErrorCode)
}

func TestSelect_EmptyBodyUsesDefaultReplicas(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 1, 0)
	f.beat(t, 1, 2, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/1/select", nil)
	f.handlers.Select(rec, withNamespace(req, "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SelectResponse
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Requested)
	assert.Len(t, resp.Peers, 1)
}

func TestSelect_Partial(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 1, 0)
	f.beat(t, 1, 2, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/1/select",
		bytes.NewBufferString(`{"replicas":3,"exclude":[2]}`))
	f.handlers.Select(rec, withNamespace(req, "1"))

	require.Equal(t, http.StatusPartialContent, rec.Code)
	var resp SelectResponse
	decode(t, rec, &resp)
	assert.Equal(t, 3, resp.Requested)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, model.PeerID(1), resp.Peers[0].ID)
	assert.Equal(t, "PARTIAL_ALLOCATION", resp.ErrorCode)
}

func TestSelect_NoAvailablePeer(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/9/select", nil)
	f.handlers.Select(rec, withNamespace(req, "9"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "NO_AVAILABLE_PEER", resp.ErrorCode)
	assert.EqualValues(t, 9, resp.Details["namespace"])
}

func TestSelect_InvalidInput(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/namespaces/abc/select", nil)
	f.handlers.Select(rec, withNamespace(req, "abc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/namespaces/1/select", bytes.NewBufferString(`{"replicas":-1}`))
	f.handlers.Select(rec, withNamespace(req, "1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLivePeers_HidesExpired(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 1, 0)
	f.now = f.now.Add(8 * time.Second)
	f.beat(t, 1, 2, 0)
	f.now = f.now.Add(4 * time.Second)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/1/peers", nil)
	f.handlers.LivePeers(rec, withNamespace(req, "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LivePeersResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, model.PeerID(2), resp.Peers[0].Peer.ID)
	assert.Equal(t, int64(6000), resp.Peers[0].RemainingMs)
}

func TestKnownPeers_IncludesExpired(t *testing.T) {
	f := newFixture(t)
	f.beat(t, 1, 1, 0)
	f.beat(t, 1, 2, 0)
	f.now = f.now.Add(time.Minute)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/namespaces/1/directory", nil)
	f.handlers.KnownPeers(rec, withNamespace(req, "1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DirectoryResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, model.PeerID(1), resp.Peers[0].Peer.ID)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/namespaces/5/directory", nil)
	f.handlers.KnownPeers(rec, withNamespace(req, "5"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cluster_id":5,"peers":[]}`, rec.Body.String())
}
