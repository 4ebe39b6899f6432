package selector

import (
	"context"
	"sync/atomic"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/model"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/zap"
)

var _ Selector = (*LeaseBasedSelector)(nil)

// LeaseBasedSelector rotates a per-namespace cursor over the live peers,
// ignoring their reported load. Given the same snapshot and cursor position
// the result is always the same.
type LeaseBasedSelector struct {
	registry LeaseReader
	cursors  *skipmap.OrderedMap[model.Namespace, *atomic.Uint64]
	logger   *zap.Logger
}

// NewLeaseBasedSelector creates a round-robin selector over registry
func NewLeaseBasedSelector(registry LeaseReader, logger *zap.Logger) *LeaseBasedSelector {
	return &LeaseBasedSelector{
		registry: registry,
		cursors:  skipmap.New[model.Namespace, *atomic.Uint64](),
		logger:   logger,
	}
}

// Type implements Selector
func (s *LeaseBasedSelector) Type() Type {
	return LeaseBased
}

func (s *LeaseBasedSelector) cursor(ns model.Namespace) *atomic.Uint64 {
	if c, ok := s.cursors.Load(ns); ok {
		return c
	}
	c, _ := s.cursors.LoadOrStore(ns, new(atomic.Uint64))
	return c
}

// Select implements Selector
func (s *LeaseBasedSelector) Select(ctx context.Context, ns model.Namespace, sctx *Context) (*Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := eligible(s.registry.Snapshot(ns), sctx)
	if len(candidates) == 0 {
		return nil, metaerrors.NoAvailablePeer(uint64(ns))
	}

	requested := sctx.replicas()
	n := min(requested, len(candidates))
	start := (s.cursor(ns).Add(1) - 1) % uint64(len(candidates))

	peers := make([]model.Peer, 0, n)
	for i := 0; i < n; i++ {
		peers = append(peers, candidates[(start+uint64(i))%uint64(len(candidates))].Peer)
	}

	s.logger.Debug("Lease based selection",
		zap.Uint64("namespace", uint64(ns)),
		zap.Int("requested", requested),
		zap.Int("candidates", len(candidates)),
		zap.Uint64("start", start))

	return finish(ns, requested, peers)
}
