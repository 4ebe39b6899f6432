package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chronodb/metasrv/internal/model"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Member roles carried in gossip metadata.
const (
	RoleDatanode = "datanode"
	RoleMetasrv  = "metasrv"
)

// GossipMeta is the memberlist node metadata exchanged by the cluster.
// Datanodes embed their latest heartbeat.
type GossipMeta struct {
	Role      string           `json:"role"`
	Heartbeat *model.Heartbeat `json:"heartbeat,omitempty"`
}

// EncodeMeta serializes node metadata for memberlist
func EncodeMeta(meta GossipMeta) ([]byte, error) {
	return json.Marshal(meta)
}

// DecodeMeta parses memberlist node metadata
func DecodeMeta(data []byte) (GossipMeta, error) {
	var meta GossipMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return GossipMeta{}, err
	}
	return meta, nil
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	Enabled        bool
	NodeName       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
	SyncInterval   time.Duration
}

// GossipRecorder receives memberlist event counts
type GossipRecorder interface {
	RecordGossipEvent(event string)
}

type memberSource interface {
	Members() []*memberlist.Node
}

// GossipService joins the worker memberlist cluster and treats every alive
// datanode member as a heartbeat source. Join and update events renew
// immediately; a periodic sync renews members whose metadata did not change.
// Leave events are only logged since lease expiry already handles death.
type GossipService struct {
	config     *GossipConfig
	memberlist *memberlist.Memberlist
	members    memberSource
	handler    Handler
	recorder   GossipRecorder
	logger     *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGossipService creates the memberlist and joins the seed nodes
func NewGossipService(cfg *GossipConfig, handler Handler, recorder GossipRecorder, logger *zap.Logger) (*GossipService, error) {
	gs := newGossipService(cfg, handler, recorder, logger)

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.Delegate = gs
	mlConfig.Events = &GossipEventDelegate{service: gs}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	gs.memberlist = ml
	gs.members = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return gs, nil
}

func newGossipService(cfg *GossipConfig, handler Handler, recorder GossipRecorder, logger *zap.Logger) *GossipService {
	return &GossipService{
		config:   cfg,
		handler:  handler,
		recorder: recorder,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the periodic member sync
func (s *GossipService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sync(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Sync renews a lease for every alive datanode member and returns how many
// renewals advanced
func (s *GossipService) Sync(ctx context.Context) int {
	if s.members == nil {
		return 0
	}

	renewed := 0
	for _, node := range s.members.Members() {
		if s.ingest(ctx, node) {
			renewed++
		}
	}
	return renewed
}

func (s *GossipService) ingest(ctx context.Context, node *memberlist.Node) bool {
	if len(node.Meta) == 0 {
		return false
	}

	meta, err := DecodeMeta(node.Meta)
	if err != nil {
		s.logger.Warn("Failed to decode gossip metadata",
			zap.String("node", node.Name),
			zap.Error(err))
		return false
	}
	if meta.Role != RoleDatanode || meta.Heartbeat == nil {
		return false
	}

	accepted, err := s.handler.Handle(ctx, *meta.Heartbeat)
	if err != nil {
		s.logger.Warn("Rejected gossip heartbeat",
			zap.String("node", node.Name),
			zap.Error(err))
		return false
	}
	return accepted
}

func (s *GossipService) recordEvent(event string) {
	if s.recorder != nil {
		s.recorder.RecordGossipEvent(event)
	}
}

// NodeMeta implements memberlist.Delegate
func (s *GossipService) NodeMeta(limit int) []byte {
	data, _ := EncodeMeta(GossipMeta{Role: RoleMetasrv})
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (s *GossipService) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (s *GossipService) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {}

// Shutdown stops the sync loop and leaves the cluster
func (s *GossipService) Shutdown() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	if s.memberlist == nil {
		return nil
	}
	if err := s.memberlist.Leave(time.Second); err != nil {
		s.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return s.memberlist.Shutdown()
}

// GossipEventDelegate handles memberlist events
type GossipEventDelegate struct {
	service *GossipService
}

// NotifyJoin is called when a node joins
func (d *GossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.service.recordEvent("join")
	d.service.logger.Info("Node joined",
		zap.String("node", node.Name),
		zap.String("addr", node.Address()))
	d.service.ingest(context.Background(), node)
}

// NotifyLeave is called when a node leaves
func (d *GossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.recordEvent("leave")
	d.service.logger.Info("Node left",
		zap.String("node", node.Name))
}

// NotifyUpdate is called when a node is updated
func (d *GossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.service.recordEvent("update")
	d.service.logger.Debug("Node updated",
		zap.String("node", node.Name))
	d.service.ingest(context.Background(), node)
}
