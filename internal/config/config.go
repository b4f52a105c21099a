package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete signbridge configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Classifier       ClassifierConfig `yaml:"classifier"`
	Server           ServerConfig     `yaml:"server"`
	Cache            CacheConfig      `yaml:"cache"`
	Extract          ExtractConfig    `yaml:"extract"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
}

// ClassifierConfig describes the external classifier programs
type ClassifierConfig struct {
	// Framed mode: frames are written to the program's stdin
	Program string   `yaml:"program"` // e.g. python3
	Args    []string `yaml:"args"`    // e.g. [models/predict_frames.py]

	// Scanned mode: the program receives [Script, <path>] as arguments
	ScriptProgram string `yaml:"script_program"` // defaults to Program
	Script        string `yaml:"script"`         // e.g. models/predict.py

	Dir string   `yaml:"dir"` // working directory for both modes
	Env []string `yaml:"env"` // extra KEY=VALUE entries

	TimeoutMS      int `yaml:"timeout_ms"`       // per invocation (default: 120000)
	TailLines      int `yaml:"tail_lines"`       // scanned-mode result window (default: 5)
	MaxOutputBytes int `yaml:"max_output_bytes"` // per stream (default: 8 MiB)
	WaitDelayMS    int `yaml:"wait_delay_ms"`    // pipe drain bound after exit/kill (default: 2000)
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Addr           string `yaml:"addr"`             // listen address (default: :8080)
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // multipart body limit (default: 64 MiB)
	MaxFrames      int    `yaml:"max_frames"`       // frames per request (default: 240)
	MaxConcurrent  int64  `yaml:"max_concurrent"`   // concurrent translations (default: 4)
	ReadTimeoutS   int    `yaml:"read_timeout_s"`   // default: 30
	WriteTimeoutS  int    `yaml:"write_timeout_s"`  // default: 150 (must outlive the classifier timeout)
	TempDir        string `yaml:"temp_dir"`         // upload staging dir (default: os.TempDir())
}

// CacheConfig selects and tunes the translation cache
type CacheConfig struct {
	Type  string      `yaml:"type"`   // memory, redis, none (default: memory)
	TTLS  int         `yaml:"ttl_s"`  // entry lifetime (default: 600)
	MaxMB int         `yaml:"max_mb"` // memory store budget in MiB (default: 64)
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"` // default: signbridge:translation:
}

// ExtractConfig contains video frame extraction settings
type ExtractConfig struct {
	Width     int `yaml:"width"`      // default: 224
	Height    int `yaml:"height"`     // default: 224
	FPS       int `yaml:"fps"`        // sampling rate (default: 10)
	MaxFrames int `yaml:"max_frames"` // default: server.max_frames
	Quality   int `yaml:"quality"`    // JPEG quality 1-100 (default: 85)
	TimeoutS  int `yaml:"timeout_s"`  // default: 60
}

// MQTTConfig contains MQTT broker settings. An empty broker disables events.
type MQTTConfig struct {
	Broker   string          `yaml:"broker"`
	ClientID string          `yaml:"client_id"`
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Translations string `yaml:"translations"` // prefix, events go to <prefix>/<mode>
	Control      string `yaml:"control"`      // commands in
	Responses    string `yaml:"responses"`    // command acks out
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Timeout returns the classifier timeout as a duration
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// WaitDelay returns the pipe drain bound as a duration
func (c ClassifierConfig) WaitDelay() time.Duration {
	return time.Duration(c.WaitDelayMS) * time.Millisecond
}

// TTL returns the cache entry lifetime
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLS) * time.Second
}

// MaxBytes returns the memory store budget
func (c CacheConfig) MaxBytes() int {
	return c.MaxMB << 20
}

// ShutdownTimeout returns the graceful shutdown budget
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
