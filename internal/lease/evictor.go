package lease

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Recorder receives eviction and liveness figures after each sweep
type Recorder interface {
	RecordEvictions(count int)
	UpdateLivePeers(namespace string, count int)
	ForgetNamespace(namespace string)
}

// Evictor periodically removes long-expired leases from a Registry
type Evictor struct {
	registry *Registry
	grace    time.Duration
	interval time.Duration
	recorder Recorder
	logger   *zap.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
}

// NewEvictor creates an evictor; recorder may be nil
func NewEvictor(registry *Registry, grace, interval time.Duration, recorder Recorder, logger *zap.Logger) *Evictor {
	return &Evictor{
		registry: registry,
		grace:    grace,
		interval: interval,
		recorder: recorder,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop
func (e *Evictor) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.run()
}

func (e *Evictor) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RunOnce()
		case <-e.stopCh:
			return
		}
	}
}

// RunOnce performs a single sweep and returns the number of evicted leases
func (e *Evictor) RunOnce() int {
	removed := e.registry.EvictExpired(e.grace)
	if removed > 0 {
		e.logger.Info("Evicted expired leases",
			zap.Int("count", removed),
			zap.Duration("grace", e.grace))
	}
	dropped := e.registry.DropEmptyNamespaces()

	if e.recorder != nil {
		e.recorder.RecordEvictions(removed)
		for _, ns := range dropped {
			e.recorder.ForgetNamespace(ns.String())
		}
		for _, ns := range e.registry.Namespaces() {
			e.recorder.UpdateLivePeers(ns.String(), e.registry.LiveCount(ns))
		}
	}

	return removed
}

// Stop terminates the loop and waits for it to exit. Safe to call twice.
func (e *Evictor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	if e.started.Load() {
		<-e.doneCh
	}
}
