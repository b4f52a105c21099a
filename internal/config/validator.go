package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if err := validateClassifier(&cfg.Classifier); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 64 << 20
	}
	if cfg.Server.MaxFrames <= 0 {
		cfg.Server.MaxFrames = 240
	}
	if cfg.Server.MaxConcurrent <= 0 {
		cfg.Server.MaxConcurrent = 4
	}
	if cfg.Server.ReadTimeoutS <= 0 {
		cfg.Server.ReadTimeoutS = 30
	}
	if cfg.Server.WriteTimeoutS <= 0 {
		cfg.Server.WriteTimeoutS = cfg.Classifier.TimeoutMS/1000 + 30
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// Extraction defaults
	if cfg.Extract.Width <= 0 {
		cfg.Extract.Width = 224
	}
	if cfg.Extract.Height <= 0 {
		cfg.Extract.Height = 224
	}
	if cfg.Extract.FPS <= 0 {
		cfg.Extract.FPS = 10
	}
	if cfg.Extract.MaxFrames <= 0 || cfg.Extract.MaxFrames > cfg.Server.MaxFrames {
		cfg.Extract.MaxFrames = cfg.Server.MaxFrames
	}
	if cfg.Extract.Quality <= 0 {
		cfg.Extract.Quality = 85
	}
	if cfg.Extract.Quality > 100 {
		return fmt.Errorf("extract.quality must be in 1..100, got %d", cfg.Extract.Quality)
	}
	if cfg.Extract.TimeoutS <= 0 {
		cfg.Extract.TimeoutS = 60
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Translations == "" {
		cfg.MQTT.Topics.Translations = fmt.Sprintf("signbridge/translations/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("signbridge/control/%s/commands", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Responses == "" {
		cfg.MQTT.Topics.Responses = fmt.Sprintf("signbridge/control/%s/responses", cfg.InstanceID)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "signbridge-" + cfg.InstanceID
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"frames":  1,
			"scanned": 1,
			"control": 1,
		}
	}
	for mode, qos := range cfg.MQTT.QoS {
		if qos > 2 {
			return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2, got %d", mode, qos)
		}
	}

	return nil
}

func validateClassifier(c *ClassifierConfig) error {
	if c.Program == "" {
		return fmt.Errorf("program is required")
	}
	if c.ScriptProgram == "" {
		c.ScriptProgram = c.Program
	}
	for i, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("env[%d] must be KEY=VALUE, got %q", i, kv)
		}
	}

	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must be >= 0")
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 120000
	}
	if c.TailLines < 0 {
		return fmt.Errorf("tail_lines must be >= 0")
	}
	if c.TailLines == 0 {
		c.TailLines = 5
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 8 << 20
	}
	if c.WaitDelayMS <= 0 {
		c.WaitDelayMS = 2000
	}
	return nil
}

func validateCache(c *CacheConfig) error {
	switch c.Type {
	case "":
		c.Type = "memory"
	case "memory", "none":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when type is redis")
		}
	default:
		return fmt.Errorf("unknown type '%s' (must be 'memory', 'redis' or 'none')", c.Type)
	}

	if c.TTLS <= 0 {
		c.TTLS = 600
	}
	if c.MaxMB <= 0 {
		c.MaxMB = 64
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "signbridge:translation:"
	}
	return nil
}
