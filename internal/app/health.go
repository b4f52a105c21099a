package app

import (
	"context"
	"time"

	"github.com/e7canasta/signbridge/internal/emitter"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status         string        `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds  int64         `json:"uptime_seconds"`
	Classifier     string        `json:"classifier"`
	CacheType      string        `json:"cache_type"`
	CacheReachable bool          `json:"cache_reachable"`
	MQTT           emitter.Stats `json:"mqtt"`
}

// HealthCheck returns the current health status of the service
func (s *Signbridge) HealthCheck(ctx context.Context) HealthStatus {
	s.mu.RLock()
	running := s.isRunning
	started := s.started
	cacheType := s.cfg.Cache.Type
	s.mu.RUnlock()

	status := HealthStatus{
		Status:     "healthy",
		Classifier: s.translator.Config().String(),
		CacheType:  cacheType,
	}
	if running {
		status.UptimeSeconds = int64(time.Since(started).Seconds())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status.CacheReachable = s.cache.Ping(pingCtx) == nil

	if s.emitter != nil {
		status.MQTT = s.emitter.Stats()
	}

	// Determine overall health status
	switch {
	case !running:
		status.Status = "unhealthy"
	case !status.CacheReachable:
		status.Status = "degraded"
	case status.MQTT.Enabled && !status.MQTT.Connected:
		status.Status = "degraded"
	}

	return status
}

// readiness reports ready unless unhealthy; a degraded cache or broker does
// not stop translations
func (s *Signbridge) readiness(ctx context.Context) (bool, any) {
	health := s.HealthCheck(ctx)
	return health.Status != "unhealthy", health
}
