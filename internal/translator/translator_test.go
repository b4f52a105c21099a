package translator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/signbridge/internal/cache"
	"github.com/e7canasta/signbridge/internal/emitter"
	"github.com/e7canasta/signbridge/internal/gateway"
	"github.com/e7canasta/signbridge/internal/types"
)

// fakeGateway returns scripted outcomes and records requests
type fakeGateway struct {
	mu      sync.Mutex
	outcome gateway.Outcome
	framed  []gateway.Request
	scanned []gateway.Request
	batches []types.FrameBatch
}

func (f *fakeGateway) RunFramed(_ context.Context, req gateway.Request, batch types.FrameBatch) gateway.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.framed = append(f.framed, req)
	f.batches = append(f.batches, batch)
	return f.outcome
}

func (f *fakeGateway) RunScanned(_ context.Context, req gateway.Request) gateway.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, req)
	return f.outcome
}

type fakePublisher struct {
	mu     sync.Mutex
	events []types.TranslationEvent
	err    error
}

func (p *fakePublisher) Publish(e types.TranslationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) Stats() emitter.Stats { return emitter.Stats{Enabled: true} }

type fakeRecorder struct {
	mu      sync.Mutex
	lookups map[string]int
	dropped int
}

func (r *fakeRecorder) CacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookups == nil {
		r.lookups = map[string]int{}
	}
	r.lookups[result]++
}

func (r *fakeRecorder) EventPublishFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

type fakeFrames struct {
	frames []types.Frame
	err    error
	paths  []string
}

func (f *fakeFrames) Frames(_ context.Context, path string) ([]types.Frame, error) {
	f.paths = append(f.paths, path)
	return f.frames, f.err
}

var testConfig = Config{
	Program: "python3",
	Args:    []string{"models/predict_frames.py"},
	Script:  "models/predict.py",
}

func okOutcome(v string) gateway.Outcome {
	return gateway.Outcome{InvocationID: "inv-1", Value: json.RawMessage(v)}
}

func batch(payloads ...string) types.FrameBatch {
	raw := make([][]byte, len(payloads))
	for i, p := range payloads {
		raw[i] = []byte(p)
	}
	return types.NewFrameBatch("trace", "upload", raw)
}

func TestTranslateFramesCachesSuccess(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{outcome: okOutcome(`["HELLO"]`)}
	store := cache.NewMemoryStore(time.Minute, 1<<20)
	defer store.Close()
	rec := &fakeRecorder{}
	pub := &fakePublisher{}

	svc := New(testConfig, gw, WithCache(store), WithRecorder(rec), WithPublisher(pub))

	first, err := svc.TranslateFrames(ctx, batch("f0", "f1"))
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "inv-1", first.InvocationID)
	assert.Equal(t, types.ModeFrames, first.Mode)
	assert.Equal(t, 2, first.Frames)
	assert.JSONEq(t, `["HELLO"]`, string(first.Result))

	require.Len(t, gw.framed, 1)
	assert.Equal(t, "python3", gw.framed[0].Program)
	assert.Equal(t, []string{"models/predict_frames.py"}, gw.framed[0].Args)

	second, err := svc.TranslateFrames(ctx, batch("f0", "f1"))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.JSONEq(t, `["HELLO"]`, string(second.Result))
	assert.Len(t, gw.framed, 1, "cache hit must not spawn")

	_, err = svc.TranslateFrames(ctx, batch("f1", "f0"))
	require.NoError(t, err)
	assert.Len(t, gw.framed, 2, "frame order is part of the key")

	assert.Equal(t, 1, rec.lookups["hit"])
	assert.Equal(t, 2, rec.lookups["miss"])
	assert.Len(t, pub.events, 3)
	assert.True(t, pub.events[1].Cached)
}

func TestTranslateFramesFailuresNotCached(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{outcome: gateway.Outcome{
		InvocationID: "inv-9",
		Err:          &gateway.Error{Kind: gateway.KindProcess, ExitCode: 1, Stderr: "boom"},
	}}
	store := cache.NewMemoryStore(time.Minute, 1<<20)
	defer store.Close()
	pub := &fakePublisher{}

	svc := New(testConfig, gw, WithCache(store), WithPublisher(pub))

	_, err := svc.TranslateFrames(ctx, batch("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrProcess)

	var inv *InvocationError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "inv-9", inv.InvocationID)

	_, err = svc.TranslateFrames(ctx, batch("x"))
	require.Error(t, err)
	assert.Len(t, gw.framed, 2, "failures must not be cached")
	assert.Zero(t, store.Len())
	assert.Empty(t, pub.events, "failures are not published")
}

func TestTranslateFramesEmptyBatch(t *testing.T) {
	gw := &fakeGateway{}
	svc := New(testConfig, gw)

	_, err := svc.TranslateFrames(context.Background(), types.FrameBatch{})
	assert.ErrorIs(t, err, gateway.ErrEmptyBatch)
	assert.Empty(t, gw.framed)
}

func TestTranslateFileUsesScriptAndPath(t *testing.T) {
	gw := &fakeGateway{outcome: okOutcome(`{"label":"HELLO","confidence":0.98}`)}
	pub := &fakePublisher{}
	svc := New(Config{Program: "python3", Script: "models/predict.py"}, gw, WithPublisher(pub))

	tr, err := svc.TranslateFile(context.Background(), "/tmp/upload-1.mp4")
	require.NoError(t, err)
	assert.Equal(t, types.ModeScanned, tr.Mode)

	require.Len(t, gw.scanned, 1)
	assert.Equal(t, "python3", gw.scanned[0].Program, "script program defaults to program")
	assert.Equal(t, []string{"models/predict.py", "/tmp/upload-1.mp4"}, gw.scanned[0].Args)
	require.Len(t, pub.events, 1)
	assert.Equal(t, types.ModeScanned, pub.events[0].Mode)
}

func TestTranslateFileEmptyPath(t *testing.T) {
	svc := New(testConfig, &fakeGateway{})
	_, err := svc.TranslateFile(context.Background(), "")
	assert.Equal(t, gateway.KindInput, gateway.KindOf(err))
}

func TestTranslateVideo(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{outcome: okOutcome(`["A","B"]`)}
	frames := &fakeFrames{frames: []types.Frame{{Data: []byte("j0")}, {Seq: 1, Data: []byte("j1")}}}
	svc := New(testConfig, gw, WithFrameSource(frames))

	tr, err := svc.TranslateVideo(ctx, "trace-v", "/tmp/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Frames)
	assert.Equal(t, []string{"/tmp/clip.mp4"}, frames.paths)
	require.Len(t, gw.batches, 1)
	assert.Equal(t, "video", gw.batches[0].Source)
	assert.Equal(t, "trace-v", gw.batches[0].TraceID)

	frames.err = errors.New("could not determine type")
	_, err = svc.TranslateVideo(ctx, "trace-v", "/tmp/clip.mp4")
	assert.Equal(t, gateway.KindInput, gateway.KindOf(err))

	unsupported := New(testConfig, gw)
	_, err = unsupported.TranslateVideo(ctx, "t", "/tmp/clip.mp4")
	assert.Equal(t, gateway.KindInput, gateway.KindOf(err))
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	gw := &fakeGateway{outcome: okOutcome(`1`)}
	rec := &fakeRecorder{}
	svc := New(testConfig, gw, WithPublisher(&fakePublisher{err: errors.New("offline")}), WithRecorder(rec))

	_, err := svc.TranslateFrames(context.Background(), batch("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.dropped)
}

func TestUpdateConfigChangesKey(t *testing.T) {
	a := framesKey(testConfig, batch("x"))
	other := testConfig
	other.Args = []string{"models/predict_frames_v2.py"}
	assert.NotEqual(t, a, framesKey(other, batch("x")))
	assert.Equal(t, a, framesKey(testConfig, batch("x")))

	gw := &fakeGateway{outcome: okOutcome(`1`)}
	svc := New(testConfig, gw)
	svc.UpdateConfig(other)
	_, err := svc.TranslateFrames(context.Background(), batch("x"))
	require.NoError(t, err)
	assert.Equal(t, other.Args, gw.framed[0].Args)
}
