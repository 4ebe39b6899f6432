package selector

import (
	"sync"
	"time"

	"github.com/chronodb/metasrv/internal/model"
)

// staticLeases serves fixed snapshots per namespace
type staticLeases map[model.Namespace][]model.Lease

func (s staticLeases) Snapshot(ns model.Namespace) []model.Lease {
	out := make([]model.Lease, len(s[ns]))
	copy(out, s[ns])
	return out
}

func newLease(ns model.Namespace, id uint64, regions int64) model.Lease {
	return model.Lease{
		Namespace:  ns,
		Peer:       model.Peer{ID: model.PeerID(id), Addr: "datanode:4001"},
		Stats:      model.LoadStats{RegionCount: regions},
		ExpireTime: time.Now().Add(time.Hour),
	}
}

func peerIDs(peers []model.Peer) []model.PeerID {
	ids := make([]model.PeerID, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	return ids
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
