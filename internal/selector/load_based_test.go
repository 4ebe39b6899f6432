package selector

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/lease"
	"github.com/chronodb/metasrv/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	peerA = 1
	peerB = 2
	peerC = 3
)

func TestLoadBased_PicksLowestScores(t *testing.T) {
	reader := staticLeases{1: {
		newLease(1, peerA, 5),
		newLease(1, peerB, 2),
		newLease(1, peerC, 9),
	}}
	s := NewLoadBasedSelector(reader, nil, zap.NewNop())

	sel, err := s.Select(context.Background(), 1, NewContext(2))
	require.NoError(t, err)
	assert.Equal(t, []model.PeerID{peerB, peerA}, peerIDs(sel.Peers))
}

func TestLoadBased_IsDeterministic(t *testing.T) {
	reader := staticLeases{1: {
		newLease(1, 4, 3),
		newLease(1, 1, 8),
		newLease(1, 3, 1),
		newLease(1, 2, 6),
	}}
	s := NewLoadBasedSelector(reader, nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		sel, err := s.Select(context.Background(), 1, NewContext(3))
		require.NoError(t, err)
		assert.Equal(t, []model.PeerID{3, 4, 2}, peerIDs(sel.Peers))
	}
}

func TestLoadBased_TieBreakByPeerID(t *testing.T) {
	reader := staticLeases{1: {
		newLease(1, 9, 4),
		newLease(1, 3, 4),
		newLease(1, 5, 1),
		newLease(1, 7, 4),
	}}
	s := NewLoadBasedSelector(reader, nil, zap.NewNop())

	sel, err := s.Select(context.Background(), 1, NewContext(4))
	require.NoError(t, err)
	assert.Equal(t, []model.PeerID{5, 3, 7, 9}, peerIDs(sel.Peers))
}

func TestLoadBased_Exclusion(t *testing.T) {
	reader := staticLeases{1: {
		newLease(1, peerA, 5),
		newLease(1, peerB, 2),
		newLease(1, peerC, 9),
	}}
	s := NewLoadBasedSelector(reader, nil, zap.NewNop())

	sel, err := s.Select(context.Background(), 1, NewContext(2, peerB))
	require.NoError(t, err)
	assert.Equal(t, []model.PeerID{peerA, peerC}, peerIDs(sel.Peers))
}

func TestLoadBased_PartialAllocation(t *testing.T) {
	reader := staticLeases{1: {newLease(1, peerA, 5), newLease(1, peerB, 2)}}
	s := NewLoadBasedSelector(reader, nil, zap.NewNop())

	sel, err := s.Select(context.Background(), 1, NewContext(3))
	assert.True(t, errors.Is(err, metaerrors.ErrPartialAllocation))
	require.NotNil(t, sel)
	assert.True(t, sel.Partial())
	assert.Equal(t, []model.PeerID{peerB, peerA}, peerIDs(sel.Peers))
}

func TestLoadBased_EmptyNamespace(t *testing.T) {
	s := NewLoadBasedSelector(staticLeases{}, nil, zap.NewNop())

	sel, err := s.Select(context.Background(), 7, NewContext(2))
	assert.Nil(t, sel)
	assert.True(t, errors.Is(err, metaerrors.ErrNoAvailablePeer))
}

func TestLoadBased_CustomWeights(t *testing.T) {
	busy := newLease(1, 1, 1)
	busy.Stats.CPUUsage = 95
	idle := newLease(1, 2, 10)
	idle.Stats.CPUUsage = 5

	scorer := NewScorer(LoadWeights{RegionCount: 1, CPUUsage: 1})
	s := NewLoadBasedSelector(staticLeases{1: {busy, idle}}, scorer, zap.NewNop())

	sel, err := s.Select(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.PeerID{2}, peerIDs(sel.Peers))
}

func TestLoadBased_SkipsExpiredLeases(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := lease.NewRegistry(zap.NewNop(), lease.WithClock(clock.Now))
	s := NewLoadBasedSelector(reg, nil, zap.NewNop())

	// the least loaded peer stops heartbeating
	reg.Renew(1, model.Peer{ID: 1, Addr: "a:1"}, model.LoadStats{RegionCount: 0}, 5*time.Second)
	reg.Renew(1, model.Peer{ID: 2, Addr: "b:1"}, model.LoadStats{RegionCount: 10}, time.Minute)
	clock.Advance(10 * time.Second)

	sel, err := s.Select(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.PeerID{2}, peerIDs(sel.Peers))
}

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer(LoadWeights{RegionCount: 2, CPUUsage: 0.5, MemoryUsage: 0.25, WriteBytesPerSec: 0.001})

	score := scorer.Score(model.LoadStats{
		RegionCount:      3,
		CPUUsage:         40,
		MemoryUsage:      80,
		WriteBytesPerSec: 1000,
	})
	assert.InDelta(t, 6+20+20+1, score, 1e-9)
}

func TestScorer_NonFiniteRanksLast(t *testing.T) {
	scorer := NewScorer(LoadWeights{RegionCount: 1, CPUUsage: 1})

	assert.Equal(t, math.MaxFloat64, scorer.Score(model.LoadStats{CPUUsage: math.NaN()}))
	assert.Equal(t, math.MaxFloat64, scorer.Score(model.LoadStats{RegionCount: 1, CPUUsage: math.Inf(1)}))

	// a zero weight ignores the bad statistic
	assert.Equal(t, 0.0, DefaultScorer.Score(model.LoadStats{CPUUsage: math.NaN()}))
}
