// Package selector implements the pluggable placement strategies that pick
// worker nodes out of the live lease set.
package selector

import (
	"context"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/model"
)

// LeaseReader is the read-only view of the lease registry a selector needs
type LeaseReader interface {
	Snapshot(ns model.Namespace) []model.Lease
}

// Selector chooses peers for a placement request. Implementations are safe
// for concurrent use and never mutate the registry.
//
// When fewer eligible peers exist than were requested, Select returns the
// peers it could allocate together with a PartialAllocation error; callers
// that accept under-fulfilment may use the Selection, others must treat the
// error as a failure. An empty eligible set yields NoAvailablePeer and a nil
// Selection.
type Selector interface {
	Select(ctx context.Context, ns model.Namespace, sctx *Context) (*Selection, error)
	Type() Type
}

// Context carries per-request selection input. A nil Context means one
// replica and no exclusions.
type Context struct {
	Replicas int
	Exclude  map[model.PeerID]struct{}
}

// NewContext builds a Context from a replica count and excluded peer ids
func NewContext(replicas int, exclude ...model.PeerID) *Context {
	c := &Context{Replicas: replicas}
	if len(exclude) > 0 {
		c.Exclude = make(map[model.PeerID]struct{}, len(exclude))
		for _, id := range exclude {
			c.Exclude[id] = struct{}{}
		}
	}
	return c
}

func (c *Context) replicas() int {
	if c == nil || c.Replicas <= 0 {
		return 1
	}
	return c.Replicas
}

func (c *Context) excluded(id model.PeerID) bool {
	if c == nil || c.Exclude == nil {
		return false
	}
	_, ok := c.Exclude[id]
	return ok
}

// Selection is the ordered result of one Select call
type Selection struct {
	Namespace model.Namespace `json:"cluster_id"`
	Requested int             `json:"requested"`
	Peers     []model.Peer    `json:"peers"`
}

// Partial reports whether fewer peers were allocated than requested
func (s *Selection) Partial() bool {
	return len(s.Peers) < s.Requested
}

// eligible drops excluded peers from a snapshot, keeping its order
func eligible(leases []model.Lease, sctx *Context) []model.Lease {
	out := make([]model.Lease, 0, len(leases))
	for _, l := range leases {
		if sctx.excluded(l.Peer.ID) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func finish(ns model.Namespace, requested int, peers []model.Peer) (*Selection, error) {
	sel := &Selection{
		Namespace: ns,
		Requested: requested,
		Peers:     peers,
	}
	if sel.Partial() {
		return sel, metaerrors.PartialAllocation(uint64(ns), requested, len(peers))
	}
	return sel, nil
}
