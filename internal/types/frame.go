package types

import "time"

// Frame represents a single captured image of a sign gesture
type Frame struct {
	// Seq is the position of the frame inside its batch (0-based)
	Seq uint64
	// Timestamp is when the frame was captured or received
	Timestamp time.Time
	// Name is the original upload name, if any
	Name string
	// ContentType is the MIME type reported by the client (image/jpeg, image/png)
	ContentType string
	// Data contains the encoded image bytes, passed through untouched
	Data []byte
}

// Size returns the byte length of the frame payload
func (f Frame) Size() int {
	return len(f.Data)
}

// FrameBatch is an ordered sequence of frames forming one gesture.
// Order is significant: frames are serialized exactly as they appear here.
type FrameBatch struct {
	// TraceID identifies the request that produced the batch
	TraceID string
	// Source identifies where the frames came from (upload, video, cli)
	Source string
	// Frames in temporal order
	Frames []Frame
}

// Count returns the number of frames in the batch
func (b FrameBatch) Count() int {
	return len(b.Frames)
}

// Bytes returns the total payload size of all frames
func (b FrameBatch) Bytes() int {
	total := 0
	for _, f := range b.Frames {
		total += len(f.Data)
	}
	return total
}

// Payloads returns the raw frame buffers in batch order
func (b FrameBatch) Payloads() [][]byte {
	out := make([][]byte, len(b.Frames))
	for i, f := range b.Frames {
		out[i] = f.Data
	}
	return out
}

// NewFrameBatch builds a batch from raw buffers, assigning sequence numbers
// in slice order.
func NewFrameBatch(traceID, source string, payloads [][]byte) FrameBatch {
	now := time.Now()
	frames := make([]Frame, len(payloads))
	for i, p := range payloads {
		frames[i] = Frame{
			Seq:       uint64(i),
			Timestamp: now,
			Data:      p,
		}
	}
	return FrameBatch{
		TraceID: traceID,
		Source:  source,
		Frames:  frames,
	}
}
