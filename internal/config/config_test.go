package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
instance_id: signbridge-dev
classifier:
  program: python3
  args: [models/predict_frames.py]
  script: models/predict.py
`

// TestParseFillsDefaults verifies a minimal file yields a complete config
func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Classifier.TimeoutMS != 120000 {
		t.Errorf("expected default timeout 120000ms, got %d", cfg.Classifier.TimeoutMS)
	}
	if cfg.Classifier.Timeout() != 2*time.Minute {
		t.Errorf("Timeout() = %v", cfg.Classifier.Timeout())
	}
	if cfg.Classifier.TailLines != 5 {
		t.Errorf("expected tail_lines 5, got %d", cfg.Classifier.TailLines)
	}
	if cfg.Classifier.ScriptProgram != "python3" {
		t.Errorf("script_program should default to program, got %q", cfg.Classifier.ScriptProgram)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MaxFrames != 240 || cfg.Server.MaxConcurrent != 4 {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeoutS <= cfg.Classifier.TimeoutMS/1000 {
		t.Errorf("write timeout %ds does not outlive classifier timeout", cfg.Server.WriteTimeoutS)
	}
	if cfg.Cache.Type != "memory" || cfg.Cache.TTL() != 10*time.Minute {
		t.Errorf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Extract.MaxFrames != cfg.Server.MaxFrames {
		t.Errorf("extract.max_frames should follow server.max_frames")
	}
	if cfg.MQTT.Topics.Translations != "signbridge/translations/signbridge-dev" {
		t.Errorf("unexpected topic %q", cfg.MQTT.Topics.Translations)
	}
	if cfg.MQTT.Topics.Control != "signbridge/control/signbridge-dev/commands" {
		t.Errorf("unexpected control topic %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.QoS["frames"] != 1 {
		t.Errorf("unexpected qos %v", cfg.MQTT.QoS)
	}
	if cfg.ShutdownTimeout() != 5*time.Second {
		t.Errorf("ShutdownTimeout() = %v", cfg.ShutdownTimeout())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance id",
			yaml: "classifier: {program: python3}",
			want: "instance_id is required",
		},
		{
			name: "bad instance id",
			yaml: "instance_id: Sign_Bridge\nclassifier: {program: python3}",
			want: "instance_id must match",
		},
		{
			name: "missing program",
			yaml: "instance_id: dev",
			want: "program is required",
		},
		{
			name: "negative timeout",
			yaml: "instance_id: dev\nclassifier: {program: python3, timeout_ms: -1}",
			want: "timeout_ms",
		},
		{
			name: "bad env entry",
			yaml: "instance_id: dev\nclassifier: {program: python3, env: [NOEQUALS]}",
			want: "KEY=VALUE",
		},
		{
			name: "unknown cache type",
			yaml: "instance_id: dev\nclassifier: {program: python3}\ncache: {type: memcached}",
			want: "unknown type",
		},
		{
			name: "redis without addr",
			yaml: "instance_id: dev\nclassifier: {program: python3}\ncache: {type: redis}",
			want: "redis.addr is required",
		},
		{
			name: "qos out of range",
			yaml: "instance_id: dev\nclassifier: {program: python3}\nmqtt: {qos: {frames: 3}}",
			want: "mqtt.qos.frames",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestWatchReloadsValidEdits verifies valid edits are delivered and invalid
// ones are skipped.
func TestWatchReloadsValidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signbridge.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, func(c *Config) { changes <- c })
	}()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("instance_id: ''\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	select {
	case c := <-changes:
		t.Fatalf("invalid edit delivered: %+v", c)
	default:
	}

	edited := minimalYAML + "  timeout_ms: 30000\n"
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case c := <-changes:
		if c.Classifier.TimeoutMS != 30000 {
			t.Errorf("expected reloaded timeout 30000, got %d", c.Classifier.TimeoutMS)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after valid edit")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
