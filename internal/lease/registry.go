// Package lease holds the process-wide view of which worker nodes are alive
// and how loaded they are.
//
// Entries are keyed by (namespace, peer id). Every slot holds an immutable
// *model.Lease behind an atomic pointer: renewals install a new value with a
// compare-and-swap, and readers copy whatever value is current, so a snapshot
// can never observe a half-written lease. Both map levels are lock-free
// skipmaps, which also gives snapshots their peer-id order for free.
package lease

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chronodb/metasrv/internal/model"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/zap"
)

// evicted marks a slot that the evictor has claimed and is about to unlink.
var evicted = &model.Lease{}

type leaseSlot struct {
	lease atomic.Pointer[model.Lease]
}

// namespaceTable holds the slots of one namespace. Renewals hold mu shared
// while they touch slots; retiring an empty table takes it exclusively, so a
// retired table can never receive a lease.
type namespaceTable struct {
	slots   *skipmap.OrderedMap[model.PeerID, *leaseSlot]
	mu      sync.RWMutex
	retired bool
}

func newNamespaceTable() *namespaceTable {
	return &namespaceTable{slots: skipmap.New[model.PeerID, *leaseSlot]()}
}

// Registry is the authoritative store of peer liveness and load.
// All methods are safe for concurrent use and never block on I/O.
type Registry struct {
	namespaces *skipmap.OrderedMap[model.Namespace, *namespaceTable]
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty lease registry
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		namespaces: skipmap.New[model.Namespace, *namespaceTable](),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry's notion of the current time
func (r *Registry) Now() time.Time {
	return r.now()
}

func (r *Registry) table(ns model.Namespace) *namespaceTable {
	if t, ok := r.namespaces.Load(ns); ok {
		return t
	}
	t, _ := r.namespaces.LoadOrStore(ns, newNamespaceTable())
	return t
}

// Renew inserts or extends the lease of peer in ns so that it expires ttl
// from now. A renewal whose deadline does not move past the current one is
// ignored, so reordered or clock-skewed heartbeats cannot shorten a lease.
// It reports whether the renewal was applied.
func (r *Registry) Renew(ns model.Namespace, peer model.Peer, stats model.LoadStats, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}

	now := r.now()
	next := &model.Lease{
		Namespace:  ns,
		Peer:       peer,
		Stats:      stats,
		RenewedAt:  now,
		ExpireTime: now.Add(ttl),
	}

	for {
		t := r.table(ns)
		t.mu.RLock()
		if t.retired {
			t.mu.RUnlock()
			runtime.Gosched()
			continue
		}
		accepted := r.renewIn(t, next)
		t.mu.RUnlock()
		return accepted
	}
}

func (r *Registry) renewIn(t *namespaceTable, next *model.Lease) bool {
	ns, peer := next.Namespace, next.Peer
	for {
		slot, ok := t.slots.Load(peer.ID)
		if !ok {
			slot, _ = t.slots.LoadOrStore(peer.ID, &leaseSlot{})
		}

		for {
			cur := slot.lease.Load()
			if cur == evicted {
				break
			}
			if cur != nil && !next.ExpireTime.After(cur.ExpireTime) {
				r.logger.Debug("Ignoring stale lease renewal",
					zap.Uint64("namespace", uint64(ns)),
					zap.Uint64("peer_id", uint64(peer.ID)),
					zap.Time("current_expire_time", cur.ExpireTime),
					zap.Time("renewal_expire_time", next.ExpireTime))
				return false
			}
			if slot.lease.CompareAndSwap(cur, next) {
				return true
			}
		}

		// The evictor owns this slot and unlinks it right after claiming it.
		runtime.Gosched()
	}
}

// Snapshot returns the live leases of ns ordered by peer id. Liveness is
// judged against a single instant taken when the call starts.
func (r *Registry) Snapshot(ns model.Namespace) []model.Lease {
	t, ok := r.namespaces.Load(ns)
	if !ok {
		return nil
	}

	now := r.now()
	leases := make([]model.Lease, 0, t.slots.Len())
	t.slots.Range(func(_ model.PeerID, slot *leaseSlot) bool {
		l := slot.lease.Load()
		if l == nil || l == evicted || !l.Alive(now) {
			return true
		}
		leases = append(leases, *l)
		return true
	})
	return leases
}

// Get returns the current lease of one peer, alive or not
func (r *Registry) Get(ns model.Namespace, id model.PeerID) (model.Lease, bool) {
	t, ok := r.namespaces.Load(ns)
	if !ok {
		return model.Lease{}, false
	}
	slot, ok := t.slots.Load(id)
	if !ok {
		return model.Lease{}, false
	}
	l := slot.lease.Load()
	if l == nil || l == evicted {
		return model.Lease{}, false
	}
	return *l, true
}

// LiveCount returns the number of live leases in ns
func (r *Registry) LiveCount(ns model.Namespace) int {
	return len(r.Snapshot(ns))
}

// Namespaces lists every namespace holding at least one lease slot, in order
func (r *Registry) Namespaces() []model.Namespace {
	out := make([]model.Namespace, 0, r.namespaces.Len())
	r.namespaces.Range(func(ns model.Namespace, _ *namespaceTable) bool {
		out = append(out, ns)
		return true
	})
	return out
}

// EvictExpired unlinks leases that expired more than grace ago and returns
// how many were removed. Selection correctness never depends on it running.
func (r *Registry) EvictExpired(grace time.Duration) int {
	cutoff := r.now().Add(-grace)
	removed := 0

	r.namespaces.Range(func(_ model.Namespace, t *namespaceTable) bool {
		t.slots.Range(func(id model.PeerID, slot *leaseSlot) bool {
			cur := slot.lease.Load()
			if cur == nil || cur == evicted || cur.ExpireTime.After(cutoff) {
				return true
			}
			// Losing the race means the peer renewed; leave it alone.
			if slot.lease.CompareAndSwap(cur, evicted) {
				t.slots.Delete(id)
				removed++
			}
			return true
		})
		return true
	})

	return removed
}

// DropEmptyNamespaces forgets namespaces whose every lease has been evicted
// and returns them in order. A later renewal recreates the namespace.
func (r *Registry) DropEmptyNamespaces() []model.Namespace {
	var dropped []model.Namespace

	r.namespaces.Range(func(ns model.Namespace, t *namespaceTable) bool {
		if t.slots.Len() != 0 {
			return true
		}

		t.mu.Lock()
		if t.slots.Len() == 0 && !t.retired {
			t.retired = true
			r.namespaces.Delete(ns)
			dropped = append(dropped, ns)
		}
		t.mu.Unlock()
		return true
	})

	if len(dropped) > 0 {
		r.logger.Debug("Dropped empty namespaces", zap.Int("count", len(dropped)))
	}
	return dropped
}
