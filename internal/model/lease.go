package model

import (
	"math"
	"time"
)

// LoadStats is the load report carried by a heartbeat. Interpretation is up
// to the selector strategy.
type LoadStats struct {
	RegionCount      int64   `json:"region_count"`
	CPUUsage         float64 `json:"cpu_usage"`
	MemoryUsage      float64 `json:"memory_usage"`
	WriteBytesPerSec float64 `json:"write_bytes_per_sec"`
}

// Valid reports whether every statistic is finite and non-negative
func (s LoadStats) Valid() bool {
	if s.RegionCount < 0 {
		return false
	}
	for _, v := range []float64{s.CPUUsage, s.MemoryUsage, s.WriteBytesPerSec} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Lease is the liveness and load record of one peer in one namespace.
// Leases held by the registry are never mutated; renewal swaps in a new value.
type Lease struct {
	Namespace  Namespace `json:"cluster_id"`
	Peer       Peer      `json:"peer"`
	Stats      LoadStats `json:"stats"`
	RenewedAt  time.Time `json:"renewed_at"`
	ExpireTime time.Time `json:"expire_time"`
}

// Alive reports whether the lease deadline is still ahead of now
func (l *Lease) Alive(now time.Time) bool {
	return l.ExpireTime.After(now)
}

// Remaining returns the time left before expiry, zero once expired
func (l *Lease) Remaining(now time.Time) time.Duration {
	if !l.Alive(now) {
		return 0
	}
	return l.ExpireTime.Sub(now)
}
