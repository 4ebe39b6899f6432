package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chronodb/metasrv/internal/model"
	"go.uber.org/zap"
)

type peerKey struct {
	ns model.Namespace
	id model.PeerID
}

// MemoryDirectory implements Directory using an in-memory map
type MemoryDirectory struct {
	data   map[peerKey]*model.PeerRecord
	mu     sync.RWMutex
	now    func() time.Time
	logger *zap.Logger
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory(logger *zap.Logger) *MemoryDirectory {
	return &MemoryDirectory{
		data:   make(map[peerKey]*model.PeerRecord),
		now:    time.Now,
		logger: logger,
	}
}

// Register implements Directory
func (d *MemoryDirectory) Register(ctx context.Context, ns model.Namespace, peer model.Peer) (bool, error) {
	key := peerKey{ns: ns, id: peer.ID}
	now := d.now()

	d.mu.RLock()
	existing, ok := d.data[key]
	d.mu.RUnlock()
	if ok && existing.Peer == peer {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok = d.data[key]
	if !ok {
		d.data[key] = &model.PeerRecord{
			Namespace: ns,
			Peer:      peer,
			FirstSeen: now,
			UpdatedAt: now,
		}
		d.logger.Info("Registered new peer",
			zap.Uint64("namespace", uint64(ns)),
			zap.Uint64("peer_id", uint64(peer.ID)),
			zap.String("addr", peer.Addr))
		return true, nil
	}

	if existing.Peer != peer {
		d.logger.Info("Peer address changed",
			zap.Uint64("namespace", uint64(ns)),
			zap.Uint64("peer_id", uint64(peer.ID)),
			zap.String("old_addr", existing.Peer.Addr),
			zap.String("new_addr", peer.Addr))
		// records handed out earlier stay untouched
		d.data[key] = &model.PeerRecord{
			Namespace: ns,
			Peer:      peer,
			FirstSeen: existing.FirstSeen,
			UpdatedAt: now,
		}
	}
	return false, nil
}

// Get implements Directory
func (d *MemoryDirectory) Get(ctx context.Context, ns model.Namespace, id model.PeerID) (*model.PeerRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.data[peerKey{ns: ns, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List implements Directory
func (d *MemoryDirectory) List(ctx context.Context, ns model.Namespace) ([]*model.PeerRecord, error) {
	d.mu.RLock()
	out := make([]*model.PeerRecord, 0)
	for key, rec := range d.data {
		if key.ns != ns {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Peer.ID < out[j].Peer.ID
	})
	return out, nil
}

// Ping implements Directory; memory is always reachable
func (d *MemoryDirectory) Ping(ctx context.Context) error {
	return nil
}

// Close implements Directory
func (d *MemoryDirectory) Close() {}

// Size returns the number of known peers across all namespaces
func (d *MemoryDirectory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data)
}
