package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chronodb/metasrv/internal/config"
	"github.com/chronodb/metasrv/internal/directory"
	"github.com/chronodb/metasrv/internal/handler"
	"github.com/chronodb/metasrv/internal/health"
	"github.com/chronodb/metasrv/internal/heartbeat"
	"github.com/chronodb/metasrv/internal/lease"
	"github.com/chronodb/metasrv/internal/metrics"
	"github.com/chronodb/metasrv/internal/selector"
	"github.com/chronodb/metasrv/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	os.Exit(start(configPath))
}

// start runs the service and returns the process exit code. Deferred
// cleanups have all run by the time it returns.
func start(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Starting meta-service",
		zap.Int("http_port", cfg.Server.Port),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.String("selector", cfg.Selector.Type),
		zap.Duration("lease_ttl", cfg.Lease.TTL),
		zap.String("directory_backend", cfg.Directory.Backend),
		zap.Bool("gossip_enabled", cfg.Gossip.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Meta-service terminated", zap.Error(err))
		return 1
	}
	logger.Info("Meta-service stopped")
	return 0
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

func newDirectory(ctx context.Context, cfg config.DirectoryConfig, logger *zap.Logger) (directory.Directory, error) {
	if cfg.Backend != config.BackendPostgres {
		return directory.NewMemoryDirectory(logger), nil
	}

	pg := cfg.Postgres
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return directory.NewPostgresDirectory(connectCtx,
		pg.Host, pg.Port, pg.Database, pg.User, pg.Password,
		pg.MaxConnections, pg.MinConnections, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	dir, err := newDirectory(ctx, cfg.Directory, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize peer directory: %w", err)
	}
	defer dir.Close()
	logger.Info("Peer directory initialized", zap.String("backend", cfg.Directory.Backend))

	registry := lease.NewRegistry(logger)

	sel, err := selector.New(cfg.Selector.SelectorType(), registry, selector.Options{
		Scorer: selector.NewScorer(cfg.Selector.Weights()),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	instrumented := selector.NewInstrumented(sel, m)

	evictor := lease.NewEvictor(registry, cfg.Lease.EvictionGrace, cfg.Lease.EvictionInterval, m, logger)
	evictor.Start()
	defer evictor.Stop()

	heartbeats := heartbeat.NewService(registry, dir, cfg.Lease.TTL, m, logger)

	if cfg.Gossip.Enabled {
		gossip, err := heartbeat.NewGossipService(&heartbeat.GossipConfig{
			Enabled:        cfg.Gossip.Enabled,
			NodeName:       cfg.Gossip.NodeName,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
			SyncInterval:   cfg.Gossip.SyncInterval,
		}, heartbeats, m, logger)
		if err != nil {
			return fmt.Errorf("failed to start gossip: %w", err)
		}
		gossip.Start()
		defer func() {
			if err := gossip.Shutdown(); err != nil {
				logger.Warn("Gossip shutdown failed", zap.Error(err))
			}
		}()
		logger.Info("Gossip heartbeat ingestion started", zap.Int("bind_port", cfg.Gossip.BindPort))
	}

	grpcServer := grpc.NewServer()
	grpcHealth := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)

	healthChecker := health.NewHealthChecker(map[string]health.Pinger{"directory": dir}, grpcHealth, logger)

	handlers := handler.NewHandlers(heartbeats, instrumented, registry, dir, handler.Options{
		TTL:             cfg.Lease.TTL,
		DefaultReplicas: cfg.Selector.DefaultReplicas,
		Timeout:         cfg.Server.RequestTimeout,
	}, logger)
	httpServer := server.NewServer(cfg, handlers, healthChecker, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		healthChecker.Watch(gctx, 5*time.Second)
		return nil
	})

	g.Go(httpServer.Start)

	g.Go(func() error {
		addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.GRPCPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		logger.Info("Starting gRPC health server", zap.String("address", addr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
