package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/signbridge/internal/types"
)

// Config controls frame extraction
type Config struct {
	Width     int
	Height    int
	FPS       int
	MaxFrames int
	Quality   int
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = 224
	}
	if c.Height <= 0 {
		c.Height = 224
	}
	if c.FPS <= 0 {
		c.FPS = 10
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = 240
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 85
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	return c
}

// Extractor turns video files into ordered JPEG frames
type Extractor struct {
	cfg Config
}

// New creates an Extractor
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg.withDefaults()}
}

// Frames decodes the video at path and returns at most MaxFrames JPEG frames
// sampled at FPS and scaled to Width×Height.
func (e *Extractor) Frames(ctx context.Context, path string) ([]types.Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}

	elements, err := createPipeline(pipelineConfig{
		Path:    path,
		Width:   e.cfg.Width,
		Height:  e.cfg.Height,
		FPS:     e.cfg.FPS,
		Quality: e.cfg.Quality,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := destroyPipeline(elements); err != nil {
			slog.Warn("extract: failed to destroy pipeline", "error", err)
		}
	}()

	frames := newCollector(e.cfg.MaxFrames)

	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return onNewSample(sink, frames)
		},
	})
	elements.Decoder.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		onPadAdded(srcPad, elements.Converter)
	})

	start := time.Now()
	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := waitForEnd(ctx, elements.Pipeline, frames); err != nil {
		return nil, err
	}

	out := frames.result()
	if len(out) == 0 {
		return nil, ErrNoFrames
	}

	slog.Info("extract: frames extracted",
		"path", path,
		"frames", len(out),
		"capped", len(out) == e.cfg.MaxFrames,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// onNewSample copies one encoded frame out of the appsink
func onNewSample(sink *app.Sink, frames *collector) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("extract: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("extract: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// GStreamer reuses the buffer
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	if !frames.add(frameData) {
		return gst.FlowEOS
	}
	return gst.FlowOK
}

// waitForEnd polls the pipeline bus until end of stream, an error, the frame
// cap or ctx expiry.
func waitForEnd(ctx context.Context, pipeline *gst.Pipeline, frames *collector) error {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ctx.Err()

		case <-frames.Full():
			return nil

		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				return nil

			case gst.MessageError:
				perr := newPipelineError(msg.ParseError())
				slog.Error("extract: pipeline error",
					"error", perr.Message,
					"debug", perr.Debug,
					"category", perr.Category.String(),
				)
				return perr
			}
		}
	}
}
