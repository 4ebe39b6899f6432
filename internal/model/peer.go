package model

import (
	"fmt"
	"strconv"
	"time"
)

// Namespace scopes the set of peers eligible for selection (cluster or tenant id)
type Namespace uint64

// String returns the decimal form used in logs and metric labels
func (n Namespace) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// ParseNamespace parses a decimal namespace id
func ParseNamespace(s string) (Namespace, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid namespace %q: %w", s, err)
	}
	return Namespace(v), nil
}

// PeerID identifies a worker node within a namespace
type PeerID uint64

// Peer is the identity and address of a worker node. Values are immutable;
// an address change produces a new Peer carrying the same ID.
type Peer struct {
	ID   PeerID `json:"id"`
	Addr string `json:"addr"`
}

func (p Peer) String() string {
	return fmt.Sprintf("%d@%s", p.ID, p.Addr)
}

// PeerRecord is a Peer Directory entry
type PeerRecord struct {
	Namespace Namespace `json:"cluster_id"`
	Peer      Peer      `json:"peer"`
	FirstSeen time.Time `json:"first_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}
