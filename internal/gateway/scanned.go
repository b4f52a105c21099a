package gateway

import (
	"context"
	"fmt"

	"github.com/e7canasta/signbridge/internal/types"
)

// RunScanned runs req.Program with req.Args, writes nothing to stdin and
// recovers the result object from the tail of stdout.
//
// Resolution is the first of:
//   - exit: non-zero → KindProcess with the stderr text; zero → tail scan,
//     KindParse with the raw output if no line qualifies
//   - spawn failure → KindSpawn
//   - timeout → process killed, KindTimeout
//   - ctx done → process killed, KindCanceled
func (g *Gateway) RunScanned(ctx context.Context, req Request) Outcome {
	return g.invoke(ctx, types.ModeScanned, req, nil, parseScannedOutput)
}

func parseScannedOutput(s Settings, stdout, stderr *tailBuffer) Outcome {
	out := stdout.String()
	if v, ok := ScanTail(out, s.TailLines); ok {
		return success(v)
	}
	msg := fmt.Sprintf("no JSON object in the last %d lines of output", s.TailLines)
	return failure(parseError(msg, out, stderr.String(), nil))
}
