package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures
type Kind int

const (
	// KindInput indicates the request was rejected before any process was spawned
	KindInput Kind = iota + 1
	// KindSpawn indicates the external program could not be started
	KindSpawn
	// KindProcess indicates the program ran and exited with a non-zero status
	KindProcess
	// KindParse indicates the program exited cleanly but its output held no JSON result
	KindParse
	// KindTimeout indicates the program outlived its deadline and was killed
	KindTimeout
	// KindCanceled indicates the caller gave up and the program was killed
	KindCanceled
)

// String returns the stable name used in logs, metrics and HTTP bodies
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "invalid_input"
	case KindSpawn:
		return "spawn_error"
	case KindProcess:
		return "process_error"
	case KindParse:
		return "parse_error"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the failure half of an invocation outcome
type Error struct {
	Kind    Kind
	Message string
	// ExitCode is the program exit status (KindProcess), -1 otherwise
	ExitCode int
	// Stderr is the accumulated error stream (may be truncated)
	Stderr string
	// Output is the accumulated standard output, kept for diagnosis
	Output string
	// Err is the underlying OS or decode error, if any
	Err error
}

// Sentinels for errors.Is matching. Comparison is by Kind.
var (
	ErrSpawn    = &Error{Kind: KindSpawn}
	ErrProcess  = &Error{Kind: KindProcess}
	ErrParse    = &Error{Kind: KindParse}
	ErrTimeout  = &Error{Kind: KindTimeout}
	ErrCanceled = &Error{Kind: KindCanceled}

	// ErrEmptyBatch rejects a framed invocation without frames
	ErrEmptyBatch = &Error{Kind: KindInput, Message: "no files uploaded", ExitCode: -1}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Kind == KindProcess {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a gateway error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the gateway kind carried by err, or 0 if err is not a gateway error
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return 0
}

func spawnError(err error) *Error {
	return &Error{
		Kind:     KindSpawn,
		Message:  "failed to start external process",
		ExitCode: -1,
		Err:      err,
	}
}

func processError(code int, stderr string) *Error {
	return &Error{
		Kind:     KindProcess,
		Message:  "external process failed",
		ExitCode: code,
		Stderr:   stderr,
	}
}

func parseError(msg, output, stderr string, err error) *Error {
	return &Error{
		Kind:     KindParse,
		Message:  msg,
		ExitCode: -1,
		Output:   output,
		Stderr:   stderr,
		Err:      err,
	}
}

func timeoutError(limit string) *Error {
	return &Error{
		Kind:     KindTimeout,
		Message:  "external process timed out after " + limit,
		ExitCode: -1,
	}
}

func canceledError(err error) *Error {
	return &Error{
		Kind:     KindCanceled,
		Message:  "invocation canceled by caller",
		ExitCode: -1,
		Err:      err,
	}
}
