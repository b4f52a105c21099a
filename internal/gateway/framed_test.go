package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/e7canasta/signbridge/internal/types"
)

func batchOf(payloads ...string) types.FrameBatch {
	raw := make([][]byte, len(payloads))
	for i, p := range payloads {
		raw[i] = []byte(p)
	}
	return types.NewFrameBatch("trace-1", "test", raw)
}

// TestRunFramedRoundTrip sends a batch to a classifier that decodes the
// envelope and echoes it back, proving order and content survive the pipe.
func TestRunFramedRoundTrip(t *testing.T) {
	spy := &spyObserver{}
	g := newTestGateway(spy)

	batch := batchOf("frame-0", "", "frame-2")
	out := g.RunFramed(context.Background(), helperRequest("echo-envelope"), batch)
	if !out.OK() {
		t.Fatalf("RunFramed failed: %v", out.Err)
	}
	if out.InvocationID == "" {
		t.Error("missing invocation id")
	}

	var reply echoReply
	if err := json.Unmarshal(out.Value, &reply); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if reply.Count != 3 {
		t.Fatalf("expected count 3, got %d", reply.Count)
	}
	for i, want := range batch.Payloads() {
		if !bytes.Equal(reply.Frames[i], want) {
			t.Errorf("frame %d: got %q, want %q", i, reply.Frames[i], want)
		}
	}

	started, resolved := spy.counts()
	if started != 1 || resolved != 1 {
		t.Errorf("observer saw started=%d resolved=%d", started, resolved)
	}
}

// TestRunFramedEmptyBatch verifies an empty batch is rejected without
// spawning anything.
func TestRunFramedEmptyBatch(t *testing.T) {
	spy := &spyObserver{}
	g := newTestGateway(spy)

	out := g.RunFramed(context.Background(), Request{Program: "/nonexistent/classifier"}, batchOf())
	if out.OK() {
		t.Fatal("expected failure")
	}
	if out.Err.Kind != KindInput || out.Err.Message != "no files uploaded" {
		t.Errorf("unexpected error %v", out.Err)
	}
	if started, _ := spy.counts(); started != 0 {
		t.Errorf("process started for empty batch")
	}
}

// TestRunFramedNonZeroExit verifies a failing exit wins even if stdout holds
// valid JSON.
func TestRunFramedNonZeroExit(t *testing.T) {
	g := newTestGateway(&spyObserver{})

	out := g.RunFramed(context.Background(), helperRequest("print", "4", `{"label":"A"}`), batchOf("x"))
	if out.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrProcess) {
		t.Fatalf("expected ErrProcess, got %v", out.Err)
	}
	if out.Err.ExitCode != 4 {
		t.Errorf("expected exit code 4, got %d", out.Err.ExitCode)
	}
}

// TestRunFramedGarbageOutput verifies unparseable stdout becomes a parse
// error that keeps the raw output.
func TestRunFramedGarbageOutput(t *testing.T) {
	g := newTestGateway(&spyObserver{})

	out := g.RunFramed(context.Background(), helperRequest("print", "0", "loading model", `{"a":1}`), batchOf("x"))
	if out.OK() {
		t.Fatal("expected failure")
	}
	if out.Err.Kind != KindParse {
		t.Fatalf("expected KindParse, got %v", out.Err)
	}
	if !strings.Contains(out.Err.Output, "loading model") {
		t.Errorf("raw output not retained: %q", out.Err.Output)
	}
}

// TestRunFramedOutputLimit verifies oversized output is not parsed from a
// truncated tail.
func TestRunFramedOutputLimit(t *testing.T) {
	g := newTestGateway(&spyObserver{}, func(s *Settings) { s.MaxOutputBytes = 16 })

	big := `{"padding":"` + strings.Repeat("p", 64) + `"}`
	out := g.RunFramed(context.Background(), helperRequest("print", "0", big), batchOf("x"))
	if out.OK() || out.Err.Kind != KindParse {
		t.Fatalf("expected parse error, got %+v", out)
	}
	if !strings.Contains(out.Err.Message, "size limit") {
		t.Errorf("unexpected message %q", out.Err.Message)
	}
}

// TestRunFramedClassifierIgnoresStdin verifies a program that never reads
// its input still resolves from its output.
func TestRunFramedClassifierIgnoresStdin(t *testing.T) {
	g := newTestGateway(&spyObserver{})

	out := g.RunFramed(context.Background(), helperRequest("ignore-stdin", `["A"]`), batchOf("x", "y"))
	if !out.OK() {
		t.Fatalf("RunFramed failed: %v", out.Err)
	}
	if string(out.Value) != `["A"]` {
		t.Errorf("unexpected value %s", out.Value)
	}
}

// TestRunFramedSpawnError verifies a missing program is reported as a spawn
// failure.
func TestRunFramedSpawnError(t *testing.T) {
	spy := &spyObserver{}
	g := newTestGateway(spy)

	out := g.RunFramed(context.Background(), Request{Program: "/nonexistent/classifier"}, batchOf("x"))
	if out.OK() || out.Err.Kind != KindSpawn {
		t.Fatalf("expected spawn error, got %+v", out)
	}
	if out.Err.Err == nil {
		t.Error("spawn error lost its cause")
	}
	if _, resolved := spy.counts(); resolved != 1 {
		t.Errorf("expected 1 resolution, got %d", resolved)
	}
}
