// Package directory records the identity and address of every worker node
// the meta service has ever heard from.
package directory

import (
	"context"
	"errors"

	"github.com/chronodb/metasrv/internal/model"
)

// ErrNotFound is returned when a peer has never been registered
var ErrNotFound = errors.New("peer not found")

// Directory is the Peer Directory. Identity is (namespace, peer id); a
// registration for a known identity replaces the address but keeps FirstSeen.
type Directory interface {
	// Register records peer under ns and reports whether it was new
	Register(ctx context.Context, ns model.Namespace, peer model.Peer) (bool, error)
	Get(ctx context.Context, ns model.Namespace, id model.PeerID) (*model.PeerRecord, error)
	// List returns every known peer of ns ordered by peer id
	List(ctx context.Context, ns model.Namespace) ([]*model.PeerRecord, error)

	Ping(ctx context.Context) error
	Close()
}
