// Package health exposes liveness and readiness probes over HTTP and keeps
// the gRPC health service in step with readiness.
package health

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is a dependency whose reachability gates readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSetter receives serving status changes; grpc health.Server
// satisfies it.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	checks  map[string]Pinger
	status  StatusSetter
	timeout time.Duration
	logger  *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker over the named dependencies.
// status may be nil.
func NewHealthChecker(checks map[string]Pinger, status StatusSetter, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		checks:  checks,
		status:  status,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// LivenessHandler handles GET /health/live requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles GET /health/ready requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.Check(r.Context())

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	code := http.StatusOK
	if !ready {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	writeStatus(w, code, status)
}

// Check pings every dependency and reports per-check results
func (h *HealthChecker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "unhealthy: " + err.Error()
			ready = false
			continue
		}
		results[name] = "healthy"
	}
	return results, ready
}

// Watch re-evaluates readiness every interval and publishes it to the
// status setter until ctx is done
func (h *HealthChecker) Watch(ctx context.Context, interval time.Duration) {
	h.publish(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.publish(ctx)
		case <-ctx.Done():
			if h.status != nil {
				h.status.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			}
			return
		}
	}
}

func (h *HealthChecker) publish(ctx context.Context) {
	if h.status == nil {
		return
	}
	serving := healthpb.HealthCheckResponse_SERVING
	if _, ready := h.Check(ctx); !ready {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.status.SetServingStatus("", serving)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
