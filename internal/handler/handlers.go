// Package handler provides the HTTP handlers of the meta-service.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chronodb/metasrv/internal/directory"
	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/heartbeat"
	"github.com/chronodb/metasrv/internal/model"
	"github.com/chronodb/metasrv/internal/selector"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LeaseLister is the introspection view of the lease registry
type LeaseLister interface {
	Snapshot(ns model.Namespace) []model.Lease
	Now() time.Time
}

// Options holds request handling parameters
type Options struct {
	TTL             time.Duration
	DefaultReplicas int
	Timeout         time.Duration
}

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	heartbeats heartbeat.Handler
	selector   selector.Selector
	leases     LeaseLister
	directory  directory.Directory
	opts       Options
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	heartbeats heartbeat.Handler,
	sel selector.Selector,
	leases LeaseLister,
	dir directory.Directory,
	opts Options,
	logger *zap.Logger,
) *Handlers {
	if opts.DefaultReplicas <= 0 {
		opts.DefaultReplicas = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Handlers{
		heartbeats: heartbeats,
		selector:   sel,
		leases:     leases,
		directory:  dir,
		opts:       opts,
		logger:     logger,
	}
}

// HeartbeatResponse acknowledges a heartbeat
type HeartbeatResponse struct {
	Accepted bool  `json:"accepted"`
	TTLMs    int64 `json:"ttl_ms"`
}

// SelectRequest is the body of a placement request
type SelectRequest struct {
	Replicas int            `json:"replicas"`
	Exclude  []model.PeerID `json:"exclude,omitempty"`
}

// SelectResponse carries the chosen peers. ErrorCode is set on partial
// allocation.
type SelectResponse struct {
	ClusterID model.Namespace `json:"cluster_id"`
	Selector  string          `json:"selector"`
	Requested int             `json:"requested"`
	Peers     []model.Peer    `json:"peers"`
	ErrorCode string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// LeaseView is a live lease as reported by the admin API
type LeaseView struct {
	Peer        model.Peer      `json:"peer"`
	Stats       model.LoadStats `json:"stats"`
	RenewedAt   time.Time       `json:"renewed_at"`
	ExpireTime  time.Time       `json:"expire_time"`
	RemainingMs int64           `json:"remaining_ms"`
}

// LivePeersResponse lists the live leases of a namespace
type LivePeersResponse struct {
	ClusterID model.Namespace `json:"cluster_id"`
	Peers     []LeaseView     `json:"peers"`
}

// DirectoryResponse lists every known peer of a namespace
type DirectoryResponse struct {
	ClusterID model.Namespace     `json:"cluster_id"`
	Peers     []*model.PeerRecord `json:"peers"`
}

// Heartbeat handles POST /v1/heartbeat requests
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb model.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		h.writeError(w, r, metaerrors.InvalidArgument("malformed heartbeat body", err))
		return
	}

	accepted, err := h.heartbeats.Handle(r.Context(), hb)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, HeartbeatResponse{
		Accepted: accepted,
		TTLMs:    h.opts.TTL.Milliseconds(),
	})
}

// Select handles POST /v1/namespaces/{ns}/select requests
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, metaerrors.InvalidArgument("malformed select body", err))
		return
	}
	if req.Replicas < 0 {
		h.writeError(w, r, metaerrors.InvalidArgument("replicas must not be negative", nil).
			WithDetail("replicas", req.Replicas))
		return
	}
	if req.Replicas == 0 {
		req.Replicas = h.opts.DefaultReplicas
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	sel, err := h.selector.Select(ctx, ns, selector.NewContext(req.Replicas, req.Exclude...))
	if err != nil && sel == nil {
		h.writeError(w, r, err)
		return
	}

	resp := SelectResponse{
		ClusterID: ns,
		Selector:  h.selector.Type().String(),
		Requested: sel.Requested,
		Peers:     sel.Peers,
	}
	status := http.StatusOK
	if err != nil {
		resp.ErrorCode = metaerrors.GetCode(err).String()
		resp.Message = err.Error()
		status = metaerrors.HTTPStatus(err)
	}

	h.writeJSONResponse(w, status, resp)
}

// LivePeers handles GET /v1/namespaces/{ns}/peers requests
func (h *Handlers) LivePeers(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	now := h.leases.Now()
	snapshot := h.leases.Snapshot(ns)
	views := make([]LeaseView, 0, len(snapshot))
	for i := range snapshot {
		l := &snapshot[i]
		views = append(views, LeaseView{
			Peer:        l.Peer,
			Stats:       l.Stats,
			RenewedAt:   l.RenewedAt,
			ExpireTime:  l.ExpireTime,
			RemainingMs: l.Remaining(now).Milliseconds(),
		})
	}

	h.writeJSONResponse(w, http.StatusOK, LivePeersResponse{ClusterID: ns, Peers: views})
}

// KnownPeers handles GET /v1/namespaces/{ns}/directory requests
func (h *Handlers) KnownPeers(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	records, err := h.directory.List(ctx, ns)
	if err != nil {
		h.writeError(w, r, metaerrors.Unavailable("peer directory unavailable", err))
		return
	}
	if records == nil {
		records = []*model.PeerRecord{}
	}

	h.writeJSONResponse(w, http.StatusOK, DirectoryResponse{ClusterID: ns, Peers: records})
}

func (h *Handlers) namespace(w http.ResponseWriter, r *http.Request) (model.Namespace, bool) {
	ns, err := model.ParseNamespace(mux.Vars(r)["ns"])
	if err != nil {
		h.writeError(w, r, metaerrors.InvalidArgument("invalid namespace", err))
		return 0, false
	}
	return ns, true
}
