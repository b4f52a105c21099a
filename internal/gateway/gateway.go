package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds every invocation unless the request overrides it
	DefaultTimeout = 120 * time.Second
	// DefaultMaxOutputBytes bounds each accumulated stream
	DefaultMaxOutputBytes = 8 << 20
	// DefaultWaitDelay bounds how long pipes may stay open after the process is gone
	DefaultWaitDelay = 2 * time.Second

	logOutputBytes = 4096
)

// Settings control every invocation started after they are applied
type Settings struct {
	// Timeout is the wall-clock limit per invocation (both modes)
	Timeout time.Duration
	// TailLines is how many trailing lines scanned mode examines
	TailLines int
	// MaxOutputBytes bounds stdout and stderr accumulation (0 = unbounded)
	MaxOutputBytes int
	// WaitDelay bounds pipe draining after exit or kill
	WaitDelay time.Duration
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		Timeout:        DefaultTimeout,
		TailLines:      DefaultTailLines,
		MaxOutputBytes: DefaultMaxOutputBytes,
		WaitDelay:      DefaultWaitDelay,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.TailLines <= 0 {
		s.TailLines = DefaultTailLines
	}
	if s.MaxOutputBytes < 0 {
		s.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if s.WaitDelay <= 0 {
		s.WaitDelay = DefaultWaitDelay
	}
	return s
}

// Request describes one external program invocation
type Request struct {
	// Program is the executable (interpreter or script) to run
	Program string
	// Args are passed positionally, in order
	Args []string
	// Timeout overrides Settings.Timeout when > 0
	Timeout time.Duration
	// Dir is the working directory (empty = current)
	Dir string
	// Env is appended to the daemon environment
	Env []string
}

// Observer is notified about invocation lifecycle.
// Resolved is called exactly once per invocation.
type Observer interface {
	Started(mode string)
	Resolved(mode string, outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Started(string)                          {}
func (nopObserver) Resolved(string, Outcome, time.Duration) {}

// Gateway runs external classifier programs. It holds no per-invocation
// state; concurrent invocations are independent.
type Gateway struct {
	settings atomic.Pointer[Settings]
	observer Observer
}

// Option configures a Gateway
type Option func(*Gateway)

// WithObserver installs a lifecycle observer
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// New creates a Gateway with the given settings
func New(s Settings, opts ...Option) *Gateway {
	g := &Gateway{observer: nopObserver{}}
	g.UpdateSettings(s)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Settings returns the active settings
func (g *Gateway) Settings() Settings {
	return *g.settings.Load()
}

// UpdateSettings replaces the settings. Running invocations keep the
// snapshot they started with.
func (g *Gateway) UpdateSettings(s Settings) {
	s = s.withDefaults()
	g.settings.Store(&s)
}

// feedFunc writes the request body to the program's stdin
type feedFunc func(w io.Writer) error

// parseFunc turns a clean exit's accumulated output into an outcome
type parseFunc func(s Settings, stdout, stderr *tailBuffer) Outcome

// invoke owns one process from spawn to reap. Terminal events (exit,
// timeout, cancellation) race into a result cell; the winner decides the
// outcome and, for timeout/cancel, kills the process group. The call returns only
// after the process has been waited for.
func (g *Gateway) invoke(ctx context.Context, mode string, req Request, feed feedFunc, parse parseFunc) Outcome {
	s := g.Settings()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.Timeout
	}

	id := uuid.NewString()
	start := time.Now()
	g.observer.Started(mode)

	cell := newResultCell(func(o Outcome) {
		o.InvocationID = id
		elapsed := time.Since(start)
		logOutcome(mode, req, o, elapsed)
		g.observer.Resolved(mode, o, elapsed)
	})
	finish := func() Outcome {
		o, _ := cell.load()
		o.InvocationID = id
		return o
	}

	if err := ctx.Err(); err != nil {
		cell.resolve(failure(canceledError(err)), nil)
		return finish()
	}

	stdout := newTailBuffer(s.MaxOutputBytes)
	stderr := newTailBuffer(s.MaxOutputBytes)
	stderrLog := &stderrLogger{invocationID: id}

	cmd := exec.Command(req.Program, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, stderrLog)
	cmd.WaitDelay = s.WaitDelay
	setProcessGroup(cmd)

	var stdin io.WriteCloser
	if feed != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			cell.resolve(failure(spawnError(err)), nil)
			return finish()
		}
		stdin = pipe
	}

	if err := cmd.Start(); err != nil {
		cell.resolve(failure(spawnError(err)), nil)
		return finish()
	}

	slog.Debug("external process spawned",
		"invocation_id", id,
		"mode", mode,
		"program", req.Program,
		"pid", cmd.Process.Pid,
		"timeout", timeout,
	)

	kill := func() {
		if err := killProcessGroup(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Error("failed to kill external process",
				"invocation_id", id,
				"pid", cmd.Process.Pid,
				"error", err,
			)
		}
	}

	timer := time.AfterFunc(timeout, func() {
		cell.resolve(failure(timeoutError(timeout.String())), kill)
	})
	defer timer.Stop()

	stopCancel := context.AfterFunc(ctx, func() {
		cell.resolve(failure(canceledError(context.Cause(ctx))), kill)
	})
	defer stopCancel()

	var writers errgroup.Group
	if feed != nil {
		writers.Go(func() error {
			defer stdin.Close()
			return feed(stdin)
		})
	}

	reaped := make(chan struct{})
	go func() {
		defer close(reaped)

		waitErr := cmd.Wait()
		stderrLog.Flush()

		code, err := exitStatus(waitErr)
		var o Outcome
		switch {
		case err != nil:
			o = failure(&Error{
				Kind:     KindProcess,
				Message:  "failed waiting for external process",
				ExitCode: code,
				Stderr:   stderr.String(),
				Err:      err,
			})
		case code != 0:
			o = failure(processError(code, stderr.String()))
		default:
			o = parse(s, stdout, stderr)
		}
		cell.resolve(o, func() { timer.Stop() })
	}()

	<-cell.Done()
	<-reaped

	if feed != nil {
		if err := writers.Wait(); err != nil {
			slog.Debug("stdin write did not complete",
				"invocation_id", id,
				"error", err,
			)
		}
	}

	return finish()
}

// exitStatus extracts the exit code from a Wait error. A non-nil error is
// returned only when the status could not be determined.
func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// exited 0 but a descendant kept the pipes open past WaitDelay
		return 0, nil
	}
	return -1, waitErr
}

func logOutcome(mode string, req Request, o Outcome, elapsed time.Duration) {
	attrs := []any{
		"invocation_id", o.InvocationID,
		"mode", mode,
		"program", req.Program,
		"outcome", o.Label(),
		"duration_ms", elapsed.Milliseconds(),
	}

	if o.OK() {
		slog.Info("external process resolved", attrs...)
		return
	}

	attrs = append(attrs, "error", o.Err.Error())
	switch o.Err.Kind {
	case KindProcess:
		attrs = append(attrs, "exit_code", o.Err.ExitCode, "stderr", clip(o.Err.Stderr, logOutputBytes))
		slog.Error("external process failed", attrs...)
	case KindParse:
		attrs = append(attrs, "raw_output", clip(o.Err.Output, logOutputBytes))
		slog.Error("external process output not parseable", attrs...)
	case KindCanceled:
		slog.Warn("external process canceled", attrs...)
	default:
		slog.Error("external process failed", attrs...)
	}
}
