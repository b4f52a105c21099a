//go:build unix

package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// processAlive reports whether pid exists and is not a zombie
func processAlive(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// state follows the parenthesized command name
	i := strings.LastIndexByte(string(data), ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] != 'Z'
}

// TestRunScannedTimeoutKillsDescendants verifies a timeout takes down the
// programs the classifier started, not only the classifier itself.
func TestRunScannedTimeoutKillsDescendants(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("requires /proc")
	}

	g := newTestGateway(&spyObserver{})
	pidFile := filepath.Join(t.TempDir(), "child.pid")

	req := helperRequest("fork-sleep", pidFile)
	req.Timeout = 2 * time.Second

	out := g.RunScanned(context.Background(), req)
	if out.OK() || !errors.Is(out.Err, ErrTimeout) {
		t.Fatalf("expected timeout, got %+v", out)
	}

	raw, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("child pid not recorded: %v", err)
	}
	pid, err := strconv.Atoi(string(raw))
	if err != nil {
		t.Fatalf("bad pid %q: %v", raw, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for processAlive(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("descendant %d still running after timeout kill", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
