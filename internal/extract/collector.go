package extract

import (
	"sync"
	"time"

	"github.com/e7canasta/signbridge/internal/types"
)

// collector accumulates frames from the streaming thread up to a cap
type collector struct {
	mu     sync.Mutex
	max    int
	frames []types.Frame
	full   chan struct{}
}

func newCollector(max int) *collector {
	return &collector{
		max:  max,
		full: make(chan struct{}),
	}
}

// add stores a copy-owned JPEG buffer. It reports false once the cap is
// reached and the caller should stop the stream.
func (c *collector) add(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.frames) >= c.max {
		return false
	}
	c.frames = append(c.frames, types.Frame{
		Seq:         uint64(len(c.frames)),
		Timestamp:   time.Now(),
		ContentType: "image/jpeg",
		Data:        data,
	})
	if len(c.frames) == c.max {
		close(c.full)
		return false
	}
	return true
}

// Full is closed once the cap is reached
func (c *collector) Full() <-chan struct{} {
	return c.full
}

func (c *collector) result() []types.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}
