package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/signbridge/internal/config"
)

// classifierYAML runs a shell classifier that drains stdin and answers with
// a fixed label
const classifierYAML = `
instance_id: signbridge-test
classifier:
  program: /bin/sh
  args: ["-c", "cat >/dev/null; echo '{\"label\":\"HELLO\"}'"]
  timeout_ms: 5000
server:
  addr: 127.0.0.1:0
cache:
  type: memory
`

func newTestApp(t *testing.T, yaml string) (*Signbridge, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.cache.Close() })
	return s, path
}

func uploadFrames(t *testing.T, s *Signbridge, frames ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, f := range frames {
		fw, err := w.CreateFormFile("files", fmt.Sprintf("frame-%d.jpg", i))
		require.NoError(t, err)
		_, err = fw.Write([]byte(f))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translate/frames", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

// TestTranslateFramesEndToEnd drives an upload through the real gateway and
// verifies the second identical upload is served from cache.
func TestTranslateFramesEndToEnd(t *testing.T) {
	s, _ := newTestApp(t, classifierYAML)

	rec := uploadFrames(t, s, "frame-1", "frame-2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"label": "HELLO"}, body["result"])
	assert.Equal(t, false, body["cached"])

	rec = uploadFrames(t, s, "frame-1", "frame-2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["cached"])
}

func TestApplyConfigUpdatesClassifier(t *testing.T) {
	s, _ := newTestApp(t, classifierYAML)

	next, err := config.Parse([]byte(classifierYAML))
	require.NoError(t, err)
	next.Server.MaxFrames = 7
	next.Classifier.TimeoutMS = 30000
	next.Classifier.Script = "models/predict.py"

	s.applyConfig(next)

	assert.Equal(t, 30*time.Second, s.gateway.Settings().Timeout)
	assert.Equal(t, "models/predict.py", s.translator.Config().Script)
	// server limits only change on restart
	assert.Equal(t, 240, s.cfg.Server.MaxFrames)
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestApp(t, classifierYAML)

	health := s.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", health.Status)
	assert.True(t, health.CacheReachable)

	s.mu.Lock()
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	health = s.HealthCheck(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "memory", health.CacheType)
	assert.False(t, health.MQTT.Enabled)

	ready, _ := s.readiness(context.Background())
	assert.True(t, ready)
}

func TestRunReloadsAndShutsDown(t *testing.T) {
	s, path := newTestApp(t, classifierYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.isRunning
	}, 2*time.Second, 10*time.Millisecond)

	// give the watcher time to register
	time.Sleep(300 * time.Millisecond)

	edited := bytes.Replace([]byte(classifierYAML), []byte("timeout_ms: 5000"), []byte("timeout_ms: 7000"), 1)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	require.Eventually(t, func() bool {
		return s.gateway.Settings().Timeout == 7*time.Second
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
	assert.Equal(t, "unhealthy", s.HealthCheck(context.Background()).Status)
}

func TestRunTwice(t *testing.T) {
	s, _ := newTestApp(t, classifierYAML)
	s.isRunning = true
	assert.Error(t, s.Run(context.Background()))
}

func TestControlCommands(t *testing.T) {
	s, _ := newTestApp(t, classifierYAML)

	require.NoError(t, s.setTimeout(9*time.Second))
	assert.Equal(t, 9*time.Second, s.gateway.Settings().Timeout)
	assert.Equal(t, 9000, s.cfg.Classifier.TimeoutMS)

	require.NoError(t, s.setTailLines(12))
	assert.Equal(t, 12, s.gateway.Settings().TailLines)
	assert.Error(t, s.setTailLines(0))

	status := s.getStatus()
	assert.Equal(t, float64(12), toFloat(status["tail_lines"]))
	assert.Equal(t, float64(9000), toFloat(status["timeout_ms"]))

	assert.Error(t, s.shutdownViaControl(), "not running yet")
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return -1
}
