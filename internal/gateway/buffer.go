package gateway

import (
	"bufio"
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// tailBuffer accumulates a stream and keeps at most max trailing bytes.
// max <= 0 means unbounded.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	buf     []byte
	dropped int64
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if b.max <= 0 {
		b.buf = append(b.buf, p...)
		return n, nil
	}

	if len(p) >= b.max {
		b.dropped += int64(len(b.buf) + len(p) - b.max)
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return n, nil
	}

	if overflow := len(b.buf) + len(p) - b.max; overflow > 0 {
		kept := copy(b.buf, b.buf[overflow:])
		b.buf = b.buf[:kept]
		b.dropped += int64(overflow)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// Bytes returns a copy of the retained bytes
func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Truncated reports whether leading bytes were discarded
func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// maxStderrLine bounds one buffered stderr line; longer lines are logged in
// pieces
const maxStderrLine = bufio.MaxScanTokenSize

// stderrLogger forwards the classifier's stderr to slog line by line.
// Both '\n' and '\r' end a line, so progress bars that redraw with '\r' are
// logged per update instead of accumulating.
// Log levels are taken from the "[LEVEL]" marker Python's logging emits:
// [ERROR]/[CRITICAL] → Error, [WARNING]/[WARN] → Warn, anything else → Debug.
type stderrLogger struct {
	invocationID string
	pending      []byte
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			l.buffer(p)
			break
		}
		l.buffer(p[:i])
		l.Flush()
		p = p[i+1:]
	}
	return n, nil
}

// buffer appends to the pending line, logging it early once it reaches
// maxStderrLine
func (l *stderrLogger) buffer(p []byte) {
	for len(l.pending)+len(p) >= maxStderrLine {
		take := maxStderrLine - len(l.pending)
		l.pending = append(l.pending, p[:take]...)
		l.Flush()
		p = p[take:]
	}
	l.pending = append(l.pending, p...)
}

// Flush logs the pending line, if any
func (l *stderrLogger) Flush() {
	if len(l.pending) > 0 {
		l.logLine(string(l.pending))
		l.pending = l.pending[:0]
	}
}

func (l *stderrLogger) logLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	switch {
	case containsAny(line, "[ERROR]", "[CRITICAL]"):
		slog.Error("classifier error", "invocation_id", l.invocationID, "log", line)
	case containsAny(line, "[WARNING]", "[WARN]"):
		slog.Warn("classifier warning", "invocation_id", l.invocationID, "log", line)
	default:
		slog.Debug("classifier log", "invocation_id", l.invocationID, "log", line)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// clip keeps the last n bytes of s for log attributes
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
