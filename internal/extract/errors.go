package extract

import (
	"errors"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

var (
	// ErrNoFrames is returned when the file decoded to zero frames
	ErrNoFrames = errors.New("no frames extracted")
	// ErrTimeout is returned when extraction exceeded its time budget
	ErrTimeout = errors.New("frame extraction timed out")
)

// ErrorCategory classifies pipeline errors for logs
type ErrorCategory int

const (
	// ErrCategoryIO indicates the file could not be opened or read
	ErrCategoryIO ErrorCategory = iota
	// ErrCategoryCodec indicates an unsupported or corrupt stream
	ErrCategoryCodec
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryIO:
		return "io"
	case ErrCategoryCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// PipelineError is a GStreamer error raised while decoding
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return "pipeline error [" + e.Category.String() + "]: " + e.Message
}

func newPipelineError(gerr *gst.GError) *PipelineError {
	if gerr == nil {
		return &PipelineError{Category: ErrCategoryUnknown, Message: "unknown error"}
	}
	msg, debug := gerr.Error(), gerr.DebugString()
	return &PipelineError{
		Category: classify(msg, debug),
		Message:  msg,
		Debug:    debug,
	}
}

// classify uses message heuristics; go-gst's GError does not expose the domain
func classify(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	if containsAny(combined,
		"codec", "decode", "demux", "format", "negotiat", "caps",
		"missing plugin", "no decoder", "type not found", "could not determine type",
	) {
		return ErrCategoryCodec
	}
	if containsAny(combined,
		"resource", "not found", "no such file", "permission", "could not open", "read",
	) {
		return ErrCategoryIO
	}
	return ErrCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
