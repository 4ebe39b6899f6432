package selector

import (
	"context"
	"sort"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/model"
	"go.uber.org/zap"
)

var _ Selector = (*LoadBasedSelector)(nil)

// LoadBasedSelector returns the live peers with the lowest load score,
// ascending, with peer id breaking ties.
type LoadBasedSelector struct {
	registry LeaseReader
	scorer   *Scorer
	logger   *zap.Logger
}

// NewLoadBasedSelector creates a least-loaded selector; a nil scorer
// falls back to DefaultScorer
func NewLoadBasedSelector(registry LeaseReader, scorer *Scorer, logger *zap.Logger) *LoadBasedSelector {
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &LoadBasedSelector{
		registry: registry,
		scorer:   scorer,
		logger:   logger,
	}
}

// Type implements Selector
func (s *LoadBasedSelector) Type() Type {
	return LoadBased
}

type scoredPeer struct {
	peer  model.Peer
	score float64
}

// Select implements Selector
func (s *LoadBasedSelector) Select(ctx context.Context, ns model.Namespace, sctx *Context) (*Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := eligible(s.registry.Snapshot(ns), sctx)
	if len(candidates) == 0 {
		return nil, metaerrors.NoAvailablePeer(uint64(ns))
	}

	scored := make([]scoredPeer, len(candidates))
	for i, l := range candidates {
		scored[i] = scoredPeer{peer: l.Peer, score: s.scorer.Score(l.Stats)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].peer.ID < scored[j].peer.ID
	})

	requested := sctx.replicas()
	n := min(requested, len(scored))
	peers := make([]model.Peer, n)
	for i := 0; i < n; i++ {
		peers[i] = scored[i].peer
	}

	if ce := s.logger.Check(zap.DebugLevel, "Load based selection"); ce != nil {
		ce.Write(
			zap.Uint64("namespace", uint64(ns)),
			zap.Int("requested", requested),
			zap.Int("candidates", len(candidates)),
			zap.Float64("best_score", scored[0].score))
	}

	return finish(ns, requested, peers)
}
