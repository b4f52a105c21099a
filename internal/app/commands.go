package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// getStatus returns the health snapshot for the control plane
func (s *Signbridge) getStatus() map[string]any {
	health := s.HealthCheck(s.runContext())

	raw, err := json.Marshal(health)
	if err != nil {
		return map[string]any{"status": health.Status}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{"status": health.Status}
	}
	data["timeout_ms"] = s.gateway.Settings().Timeout.Milliseconds()
	data["tail_lines"] = s.gateway.Settings().TailLines
	return data
}

// setTimeout changes the per-invocation limit until the next reload
func (s *Signbridge) setTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	old := next.Classifier.TimeoutMS
	next.Classifier.TimeoutMS = int(d.Milliseconds())
	s.cfg = &next
	s.gateway.UpdateSettings(gatewaySettings(next.Classifier))

	slog.Info("classifier timeout updated", "old_ms", old, "new_ms", next.Classifier.TimeoutMS)
	return nil
}

// setTailLines changes the scanned-mode result window until the next reload
func (s *Signbridge) setTailLines(n int) error {
	if n <= 0 {
		return fmt.Errorf("tail_lines must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	old := next.Classifier.TailLines
	next.Classifier.TailLines = n
	s.cfg = &next
	s.gateway.UpdateSettings(gatewaySettings(next.Classifier))

	slog.Info("classifier tail_lines updated", "old", old, "new", n)
	return nil
}

// shutdownViaControl ends Run; the caller then performs Shutdown
func (s *Signbridge) shutdownViaControl() error {
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service is not running")
	}
	cancel()
	return nil
}
