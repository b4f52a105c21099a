package app

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/e7canasta/signbridge/internal/config"
)

// applyConfig applies a reloaded configuration without restarting. Classifier
// settings take effect for the next invocation; everything else is logged and
// needs a restart.
func (s *Signbridge) applyConfig(next *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	changes := []string{}

	if classifierChanged(prev.Classifier, next.Classifier) {
		s.gateway.UpdateSettings(gatewaySettings(next.Classifier))
		s.translator.UpdateConfig(translatorConfig(next.Classifier))
		changes = append(changes, fmt.Sprintf("classifier: %s → %s",
			translatorConfig(prev.Classifier), translatorConfig(next.Classifier)))

		if prev.Classifier.TimeoutMS != next.Classifier.TimeoutMS {
			changes = append(changes, fmt.Sprintf("classifier.timeout_ms: %d → %d",
				prev.Classifier.TimeoutMS, next.Classifier.TimeoutMS))
		}
	}

	if prev.ShutdownTimeoutS != next.ShutdownTimeoutS {
		changes = append(changes, fmt.Sprintf("shutdown_timeout_s: %d → %d",
			prev.ShutdownTimeoutS, next.ShutdownTimeoutS))
	}

	restart := []string{}
	if prev.Server != next.Server {
		restart = append(restart, "server")
	}
	if prev.Cache != next.Cache {
		restart = append(restart, "cache")
	}
	if prev.Extract != next.Extract {
		restart = append(restart, "extract")
	}
	if prev.MQTT.Broker != next.MQTT.Broker || prev.MQTT.ClientID != next.MQTT.ClientID ||
		prev.MQTT.Topics != next.MQTT.Topics {
		restart = append(restart, "mqtt")
	}
	if prev.InstanceID != next.InstanceID {
		restart = append(restart, "instance_id")
	}

	if len(restart) > 0 {
		slog.Warn("config sections changed that require a restart, keeping running values",
			"sections", restart,
		)
	}

	// Keep restart-only sections as they are running
	merged := *prev
	merged.Classifier = next.Classifier
	merged.ShutdownTimeoutS = next.ShutdownTimeoutS
	s.cfg = &merged

	if len(changes) == 0 {
		slog.Info("config reload had no hot-reloadable changes")
		return
	}
	slog.Info("config update applied", "changes", changes)
}

func classifierChanged(a, b config.ClassifierConfig) bool {
	if a.Program != b.Program || a.ScriptProgram != b.ScriptProgram || a.Script != b.Script ||
		a.Dir != b.Dir || a.TimeoutMS != b.TimeoutMS || a.TailLines != b.TailLines ||
		a.MaxOutputBytes != b.MaxOutputBytes || a.WaitDelayMS != b.WaitDelayMS {
		return true
	}
	return !slices.Equal(a.Args, b.Args) || !slices.Equal(a.Env, b.Env)
}
