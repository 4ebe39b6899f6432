// Package heartbeat turns decoded worker heartbeats into peer directory
// entries and lease renewals.
package heartbeat

import (
	"context"
	"time"

	"github.com/chronodb/metasrv/internal/directory"
	metaerrors "github.com/chronodb/metasrv/internal/errors"
	"github.com/chronodb/metasrv/internal/model"
	"go.uber.org/zap"
)

// Heartbeat results reported to a Recorder.
const (
	ResultAccepted = "accepted"
	ResultStale    = "stale"
	ResultInvalid  = "invalid"
)

// LeaseRenewer is the write side of the lease registry
type LeaseRenewer interface {
	Renew(ns model.Namespace, peer model.Peer, stats model.LoadStats, ttl time.Duration) bool
}

// Recorder receives heartbeat outcomes
type Recorder interface {
	RecordHeartbeat(namespace, result string)
	RecordDirectoryError()
}

// Handler consumes decoded heartbeats
type Handler interface {
	Handle(ctx context.Context, hb model.Heartbeat) (bool, error)
}

// Service renews leases for incoming heartbeats with a fixed TTL
type Service struct {
	registry  LeaseRenewer
	directory directory.Directory
	ttl       time.Duration
	recorder  Recorder
	logger    *zap.Logger
}

var _ Handler = (*Service)(nil)

// NewService creates a heartbeat service; recorder may be nil
func NewService(
	registry LeaseRenewer,
	dir directory.Directory,
	ttl time.Duration,
	recorder Recorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry:  registry,
		directory: dir,
		ttl:       ttl,
		recorder:  recorder,
		logger:    logger,
	}
}

// TTL returns the lease duration granted per heartbeat
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Handle validates hb, records the peer and renews its lease. It reports
// whether the lease deadline advanced. Directory failures are logged and
// never prevent the renewal.
func (s *Service) Handle(ctx context.Context, hb model.Heartbeat) (bool, error) {
	ns := hb.Namespace.String()

	if err := validate(hb); err != nil {
		s.record(ns, ResultInvalid)
		return false, err
	}

	if s.directory != nil {
		if _, err := s.directory.Register(ctx, hb.Namespace, hb.Peer); err != nil {
			s.logger.Error("Failed to register peer in directory",
				zap.Uint64("namespace", uint64(hb.Namespace)),
				zap.Uint64("peer_id", uint64(hb.Peer.ID)),
				zap.Error(err))
			if s.recorder != nil {
				s.recorder.RecordDirectoryError()
			}
		}
	}

	accepted := s.registry.Renew(hb.Namespace, hb.Peer, hb.Stats, s.ttl)
	if accepted {
		s.record(ns, ResultAccepted)
	} else {
		s.record(ns, ResultStale)
	}

	s.logger.Debug("Heartbeat handled",
		zap.Uint64("namespace", uint64(hb.Namespace)),
		zap.Uint64("peer_id", uint64(hb.Peer.ID)),
		zap.String("addr", hb.Peer.Addr),
		zap.Int64("region_count", hb.Stats.RegionCount),
		zap.Bool("accepted", accepted))

	return accepted, nil
}

func (s *Service) record(ns, result string) {
	if s.recorder != nil {
		s.recorder.RecordHeartbeat(ns, result)
	}
}

func validate(hb model.Heartbeat) error {
	if hb.Peer.Addr == "" {
		return metaerrors.InvalidArgument("heartbeat peer address is required", nil).
			WithDetail("peer_id", uint64(hb.Peer.ID))
	}
	if !hb.Stats.Valid() {
		return metaerrors.InvalidArgument("heartbeat load statistics must be finite and non-negative", nil).
			WithDetail("peer_id", uint64(hb.Peer.ID))
	}
	return nil
}
