package gateway

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"testing"
)

// envelopeSize returns the exact number of bytes WriteEnvelope produces
func envelopeSize(frames [][]byte) int {
	n := headerSize
	for _, f := range frames {
		n += headerSize + len(f)
	}
	return n
}

// encodeEnvelope returns the envelope for frames as a byte slice
func encodeEnvelope(frames [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(envelopeSize(frames))
	if err := WriteEnvelope(&buf, frames); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TestEnvelopeLayout pins the exact byte layout of a small batch.
func TestEnvelopeLayout(t *testing.T) {
	frames := [][]byte{[]byte("ab"), {}, []byte("xyz")}

	got, err := encodeEnvelope(frames)
	if err != nil {
		t.Fatalf("encodeEnvelope failed: %v", err)
	}

	want := []byte{
		3, 0, 0, 0, // count
		2, 0, 0, 0, 'a', 'b',
		0, 0, 0, 0,
		3, 0, 0, 0, 'x', 'y', 'z',
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("layout mismatch\n got  %v\n want %v", got, want)
	}
	if len(got) != envelopeSize(frames) {
		t.Errorf("envelopeSize=%d, encoded %d bytes", envelopeSize(frames), len(got))
	}
}

// TestEnvelopeRoundTrip verifies decode(encode(frames)) == frames for random
// batches, including empty batches and zero-length frames.
func TestEnvelopeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		frames := make([][]byte, n)
		for i := range frames {
			size := rng.Intn(600)
			if rng.Intn(4) == 0 {
				size = 0
			}
			frames[i] = make([]byte, size)
			rng.Read(frames[i])
		}

		var buf bytes.Buffer
		if err := WriteEnvelope(&buf, frames); err != nil {
			t.Fatalf("iter %d: WriteEnvelope failed: %v", iter, err)
		}

		decoded, err := ReadEnvelope(&buf, 0)
		if err != nil {
			t.Fatalf("iter %d: ReadEnvelope failed: %v", iter, err)
		}
		if len(decoded) != len(frames) {
			t.Fatalf("iter %d: expected %d frames, got %d", iter, len(frames), len(decoded))
		}
		for i := range frames {
			if !bytes.Equal(decoded[i], frames[i]) {
				t.Fatalf("iter %d: frame %d differs", iter, i)
			}
		}
		if buf.Len() != 0 {
			t.Errorf("iter %d: %d trailing bytes left unread", iter, buf.Len())
		}
	}
}

// TestReadEnvelopeStopsAtCount verifies the receiver consumes exactly count
// frames and leaves anything after them alone.
func TestReadEnvelopeStopsAtCount(t *testing.T) {
	enc, err := encodeEnvelope([][]byte{[]byte("one")})
	if err != nil {
		t.Fatalf("encodeEnvelope failed: %v", err)
	}
	stream := bytes.NewReader(append(enc, []byte("tail")...))

	frames, err := ReadEnvelope(stream, 0)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != "one" {
		t.Fatalf("unexpected frames: %q", frames)
	}

	rest, _ := io.ReadAll(stream)
	if string(rest) != "tail" {
		t.Errorf("expected trailing bytes untouched, got %q", rest)
	}
}

// TestReadEnvelopeTruncated verifies short streams are reported, not padded.
func TestReadEnvelopeTruncated(t *testing.T) {
	enc, _ := encodeEnvelope([][]byte{[]byte("hello"), []byte("world")})

	for cut := 0; cut < len(enc); cut++ {
		_, err := ReadEnvelope(bytes.NewReader(enc[:cut]), 0)
		if err == nil {
			t.Fatalf("cut at %d: expected error", cut)
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("cut at %d: expected EOF-class error, got %v", cut, err)
		}
	}
}

// TestReadEnvelopeFrameLimit verifies the per-frame allocation bound.
func TestReadEnvelopeFrameLimit(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(1<<30))

	if _, err := ReadEnvelope(&buf, 1024); err == nil {
		t.Fatal("expected limit error for 1 GiB frame")
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, io.ErrClosedPipe
	}
	w.after--
	return len(p), nil
}

// TestWriteEnvelopeWriterError verifies write failures surface to the caller.
func TestWriteEnvelopeWriterError(t *testing.T) {
	err := WriteEnvelope(&failingWriter{}, [][]byte{[]byte("x")})
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected ErrClosedPipe, got %v", err)
	}
}
