package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineConfig contains configuration for GStreamer pipeline creation
type pipelineConfig struct {
	Path    string
	Width   int
	Height  int
	FPS     int
	Quality int
}

// pipelineElements holds references needed while running and for cleanup
type pipelineElements struct {
	Pipeline  *gst.Pipeline
	AppSink   *app.Sink
	Decoder   *gst.Element
	Converter *gst.Element
}

// createPipeline builds the extraction pipeline in the NULL state.
// The caller links decodebin pads and sets the pipeline to PLAYING.
func createPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create filesrc: %w", err)
	}
	filesrc.SetProperty("location", cfg.Path)

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create decodebin: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Width, cfg.Height, cfg.FPS)))

	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, fmt.Errorf("failed to create jpegenc: %w", err)
	}
	encoder.SetProperty("quality", cfg.Quality)

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	// Offline decode: every frame matters, none may be dropped
	appsink.SetProperty("sync", false)
	appsink.SetProperty("drop", false)

	if err := pipeline.AddMany(
		filesrc,
		decodebin,
		converter,
		scaler,
		videorate,
		capsfilter,
		encoder,
		appsink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}

	if err := filesrc.Link(decodebin); err != nil {
		return nil, fmt.Errorf("failed to link filesrc to decodebin: %w", err)
	}
	if err := gst.ElementLinkMany(
		converter,
		scaler,
		videorate,
		capsfilter,
		encoder,
		appsink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &pipelineElements{
		Pipeline:  pipeline,
		AppSink:   appsink,
		Decoder:   decodebin,
		Converter: converter,
	}, nil
}

// onPadAdded links decodebin's video pad to videoconvert. Audio and other
// pads are left unlinked.
func onPadAdded(srcPad *gst.Pad, converter *gst.Element) {
	if caps := srcPad.GetCurrentCaps(); caps != nil {
		if !strings.HasPrefix(caps.String(), "video/") {
			slog.Debug("extract: ignoring non-video pad", "pad", srcPad.GetName(), "caps", caps.String())
			return
		}
	}

	sinkPad := converter.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("extract: failed to get sink pad from videoconvert")
		return
	}
	if sinkPad.IsLinked() {
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("extract: failed to link decoder pad",
			"src_pad", srcPad.GetName(),
			"ret", ret,
		)
		return
	}
	slog.Debug("extract: decoder pad linked", "src_pad", srcPad.GetName())
}

// destroyPipeline sets the pipeline to NULL, releasing all resources
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps builds the raw video caps applied before encoding
func buildCaps(width, height, fps int) string {
	return fmt.Sprintf(
		"video/x-raw,width=%d,height=%d,framerate=%d/1",
		width, height, fps,
	)
}
