package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/e7canasta/signbridge/internal/cache"
	"github.com/e7canasta/signbridge/internal/emitter"
	"github.com/e7canasta/signbridge/internal/gateway"
	"github.com/e7canasta/signbridge/internal/types"
)

// Invoker runs the external classifier
type Invoker interface {
	RunFramed(ctx context.Context, req gateway.Request, batch types.FrameBatch) gateway.Outcome
	RunScanned(ctx context.Context, req gateway.Request) gateway.Outcome
}

// FrameSource extracts frames from a media file
type FrameSource interface {
	Frames(ctx context.Context, path string) ([]types.Frame, error)
}

// Recorder receives cache and event counters
type Recorder interface {
	CacheLookup(result string)
	EventPublishFailed()
}

// Cache lookup results reported to the Recorder
const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"
)

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string)  {}
func (nopRecorder) EventPublishFailed() {}

// Config names the classifier programs
type Config struct {
	// Program and Args run in framed mode
	Program string
	Args    []string
	// ScriptProgram runs in scanned mode with [Script, <path>]
	ScriptProgram string
	Script        string

	Dir string
	Env []string
}

// InvocationError is a failed translation together with the invocation that
// produced it. It unwraps to the *gateway.Error.
type InvocationError struct {
	InvocationID string
	Err          *gateway.Error
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Service turns uploads into translations: cache lookup, classifier
// invocation, result caching and event publication.
type Service struct {
	cfg       atomic.Pointer[Config]
	gateway   Invoker
	cache     cache.Store
	publisher emitter.Publisher
	frames    FrameSource
	recorder  Recorder
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithCache installs a result cache
func WithCache(s cache.Store) Option {
	return func(svc *Service) { svc.cache = s }
}

// WithPublisher installs an event publisher
func WithPublisher(p emitter.Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithFrameSource installs the video frame extractor
func WithFrameSource(f FrameSource) Option {
	return func(svc *Service) { svc.frames = f }
}

// WithRecorder installs a counter sink
func WithRecorder(r Recorder) Option {
	return func(svc *Service) { svc.recorder = r }
}

// New creates a Service
func New(cfg Config, gw Invoker, opts ...Option) *Service {
	s := &Service{
		gateway:   gw,
		cache:     cache.NopStore{},
		publisher: emitter.NopPublisher{},
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig swaps the classifier configuration for subsequent requests
func (s *Service) UpdateConfig(cfg Config) {
	if cfg.ScriptProgram == "" {
		cfg.ScriptProgram = cfg.Program
	}
	s.cfg.Store(&cfg)
}

// Config returns the active classifier configuration
func (s *Service) Config() Config {
	return *s.cfg.Load()
}

// TranslateFrames classifies an ordered frame batch in framed mode. Results
// are cached by batch content and classifier identity.
func (s *Service) TranslateFrames(ctx context.Context, batch types.FrameBatch) (types.Translation, error) {
	if batch.Count() == 0 {
		return types.Translation{}, gateway.ErrEmptyBatch
	}

	cfg := s.Config()
	start := s.now()
	key := framesKey(cfg, batch)

	if t, ok := s.lookup(ctx, key, batch); ok {
		t.Duration = s.now().Sub(start)
		s.publish(t)
		return t, nil
	}

	req := gateway.Request{
		Program: cfg.Program,
		Args:    cfg.Args,
		Dir:     cfg.Dir,
		Env:     cfg.Env,
	}
	outcome := s.gateway.RunFramed(ctx, req, batch)
	if !outcome.OK() {
		return types.Translation{}, &InvocationError{InvocationID: outcome.InvocationID, Err: outcome.Err}
	}

	t := types.Translation{
		InvocationID: outcome.InvocationID,
		Mode:         types.ModeFrames,
		Result:       outcome.Value,
		Duration:     s.now().Sub(start),
		Frames:       batch.Count(),
	}

	s.store(ctx, key, t)
	s.publish(t)
	return t, nil
}

// TranslateFile classifies a stored upload in scanned mode; the classifier
// receives the file path as its last argument. Scanned results are not
// cached.
func (s *Service) TranslateFile(ctx context.Context, path string) (types.Translation, error) {
	if path == "" {
		return types.Translation{}, &gateway.Error{Kind: gateway.KindInput, Message: "no file uploaded", ExitCode: -1}
	}

	cfg := s.Config()
	start := s.now()

	args := make([]string, 0, 2)
	if cfg.Script != "" {
		args = append(args, cfg.Script)
	}
	args = append(args, path)

	outcome := s.gateway.RunScanned(ctx, gateway.Request{
		Program: cfg.ScriptProgram,
		Args:    args,
		Dir:     cfg.Dir,
		Env:     cfg.Env,
	})
	if !outcome.OK() {
		return types.Translation{}, &InvocationError{InvocationID: outcome.InvocationID, Err: outcome.Err}
	}

	t := types.Translation{
		InvocationID: outcome.InvocationID,
		Mode:         types.ModeScanned,
		Result:       outcome.Value,
		Duration:     s.now().Sub(start),
	}
	s.publish(t)
	return t, nil
}

// TranslateVideo extracts frames from a video file and classifies them in
// framed mode
func (s *Service) TranslateVideo(ctx context.Context, traceID, path string) (types.Translation, error) {
	if s.frames == nil {
		return types.Translation{}, &gateway.Error{Kind: gateway.KindInput, Message: "video upload not supported", ExitCode: -1}
	}

	frames, err := s.frames.Frames(ctx, path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return types.Translation{}, &gateway.Error{Kind: gateway.KindCanceled, Message: "invocation canceled by caller", ExitCode: -1, Err: err}
		}
		return types.Translation{}, &gateway.Error{Kind: gateway.KindInput, Message: "failed to extract frames", ExitCode: -1, Err: err}
	}

	return s.TranslateFrames(ctx, types.FrameBatch{
		TraceID: traceID,
		Source:  "video",
		Frames:  frames,
	})
}

func (s *Service) lookup(ctx context.Context, key string, batch types.FrameBatch) (types.Translation, bool) {
	entry, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.recorder.CacheLookup(lookupHit)
		slog.Debug("translation cache hit", "trace_id", batch.TraceID, "frames", batch.Count())
		return types.Translation{
			InvocationID: "cache-" + key[:16],
			Mode:         entry.Mode,
			Result:       entry.Value,
			Cached:       true,
			Frames:       entry.Frames,
		}, true

	case errors.Is(err, cache.ErrMiss):
		s.recorder.CacheLookup(lookupMiss)

	default:
		s.recorder.CacheLookup(lookupError)
		slog.Warn("translation cache lookup failed", "trace_id", batch.TraceID, "error", err)
	}
	return types.Translation{}, false
}

func (s *Service) store(ctx context.Context, key string, t types.Translation) {
	err := s.cache.Set(ctx, key, cache.Entry{
		Value:    t.Result,
		Mode:     t.Mode,
		Frames:   t.Frames,
		StoredAt: s.now(),
	})
	if err != nil {
		slog.Warn("failed to cache translation", "invocation_id", t.InvocationID, "error", err)
	}
}

func (s *Service) publish(t types.Translation) {
	if err := s.publisher.Publish(types.NewTranslationEvent(t, s.now())); err != nil {
		s.recorder.EventPublishFailed()
		slog.Warn("failed to publish translation event",
			"invocation_id", t.InvocationID,
			"error", err,
		)
	}
}

// framesKey addresses a batch under one classifier identity
func framesKey(cfg Config, batch types.FrameBatch) string {
	identity := make([][]byte, 0, len(cfg.Args)+2)
	identity = append(identity, []byte(cfg.Program), []byte(strconv.Itoa(len(cfg.Args))))
	for _, a := range cfg.Args {
		identity = append(identity, []byte(a))
	}

	parts := make([][]byte, 0, batch.Count()+2)
	parts = append(parts, []byte(cache.Key(identity...)), []byte(types.ModeFrames))
	parts = append(parts, batch.Payloads()...)
	return cache.Key(parts...)
}

// String renders the classifier command line for logs
func (c Config) String() string {
	return fmt.Sprintf("%s %v", c.Program, c.Args)
}
