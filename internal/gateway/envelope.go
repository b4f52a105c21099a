package gateway

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// headerSize is the width of every count and length field on the wire
	headerSize = 4
	// maxFrameLen is the largest frame a u32 length field can describe
	maxFrameLen = math.MaxUint32
)

// ErrFrameTooLarge is returned when a frame cannot be described by a u32 length
var ErrFrameTooLarge = errors.New("frame exceeds 4 GiB length field")

// WriteEnvelope serializes frames in order:
//
//	[count u32 LE] then for each frame [len u32 LE][bytes]
//
// The count always equals len(frames). Oversized frames are rejected before
// any byte reaches w.
func WriteEnvelope(w io.Writer, frames [][]byte) error {
	if uint64(len(frames)) > math.MaxUint32 {
		return fmt.Errorf("too many frames: %d", len(frames))
	}
	for i, f := range frames {
		if uint64(len(f)) > maxFrameLen {
			return frameSizeError(i)
		}
	}

	bw := bufio.NewWriterSize(w, 64*1024)
	var hdr [headerSize]byte

	binary.LittleEndian.PutUint32(hdr[:], uint32(len(frames)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write frame count: %w", err)
	}

	for i, f := range frames {
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(f)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return fmt.Errorf("failed to write length of frame %d: %w", i, err)
		}
		if _, err := bw.Write(f); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush envelope: %w", err)
	}
	return nil
}

func frameSizeError(i int) error {
	return fmt.Errorf("frame %d: %w", i, ErrFrameTooLarge)
}

// ReadEnvelope is the receiving side of WriteEnvelope. It reads the count,
// then exactly count length-prefixed frames, and stops. maxFrameBytes bounds
// a single frame allocation (0 disables the check).
func ReadEnvelope(r io.Reader, maxFrameBytes uint32) ([][]byte, error) {
	var hdr [headerSize]byte

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame count: %w", err)
	}
	count := binary.LittleEndian.Uint32(hdr[:])

	// Cap the preallocation; a hostile count must not allocate up front.
	frames := make([][]byte, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("failed to read length of frame %d: %w", i, err)
		}
		n := binary.LittleEndian.Uint32(hdr[:])
		if maxFrameBytes > 0 && n > maxFrameBytes {
			return nil, fmt.Errorf("frame %d: length %d exceeds limit %d", i, n, maxFrameBytes)
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, fmt.Errorf("failed to read frame %d (%d bytes): %w", i, n, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
