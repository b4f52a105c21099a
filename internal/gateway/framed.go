package gateway

import (
	"context"
	"io"

	"github.com/e7canasta/signbridge/internal/types"
)

// RunFramed hands an ordered frame batch to the classifier over stdin and
// returns the one JSON value it writes to stdout.
//
// The batch is written as the wire envelope and stdin is closed afterwards so
// the classifier knows the batch is complete. A non-zero exit is reported as
// KindProcess without looking at stdout; otherwise the whole of stdout must be
// a single JSON value.
func (g *Gateway) RunFramed(ctx context.Context, req Request, batch types.FrameBatch) Outcome {
	if batch.Count() == 0 {
		return failure(ErrEmptyBatch)
	}

	payloads := batch.Payloads()
	for i, p := range payloads {
		if uint64(len(p)) > maxFrameLen {
			return failure(&Error{
				Kind:     KindInput,
				Message:  "frame too large",
				ExitCode: -1,
				Err:      frameSizeError(i),
			})
		}
	}

	feed := func(w io.Writer) error {
		return WriteEnvelope(w, payloads)
	}

	return g.invoke(ctx, types.ModeFrames, req, feed, parseFramedOutput)
}

func parseFramedOutput(_ Settings, stdout, stderr *tailBuffer) Outcome {
	if stdout.Truncated() {
		return failure(parseError("output exceeds size limit", stdout.String(), stderr.String(), nil))
	}

	raw := stdout.Bytes()
	v, err := parseWhole(raw)
	if err != nil {
		return failure(parseError("output is not a JSON value", string(raw), stderr.String(), err))
	}
	return success(v)
}
