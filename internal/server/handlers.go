package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/e7canasta/signbridge/internal/gateway"
	"github.com/e7canasta/signbridge/internal/translator"
	"github.com/e7canasta/signbridge/internal/types"
)

const requestIDHeader = "X-Request-ID"

// translationResponse is the success body
type translationResponse struct {
	InvocationID string          `json:"invocation_id"`
	Mode         string          `json:"mode"`
	Result       json.RawMessage `json:"result"`
	Cached       bool            `json:"cached"`
	Frames       int             `json:"frames,omitempty"`
	DurationMS   float64         `json:"duration_ms"`
}

func (s *Server) handleTranslateFrames(c *gin.Context) {
	requestID := startRequest(c)

	form, ok := s.readForm(c)
	if !ok {
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		abortInput(c, gateway.ErrEmptyBatch.Message)
		return
	}
	if len(files) > s.cfg.MaxFrames {
		abortInput(c, fmt.Sprintf("too many frames: %d (max %d)", len(files), s.cfg.MaxFrames))
		return
	}

	frames := make([]types.Frame, 0, len(files))
	for i, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			abortInput(c, fmt.Sprintf("failed to read frame %d: %v", i, err))
			return
		}
		frames = append(frames, types.Frame{
			Seq:         uint64(i),
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	if !s.acquire(c) {
		return
	}
	defer s.sem.Release(1)

	t, err := s.translator.TranslateFrames(c.Request.Context(), types.FrameBatch{
		TraceID: requestID,
		Source:  "upload",
		Frames:  frames,
	})
	s.respond(c, t, err)
}

func (s *Server) handleTranslateFile(c *gin.Context) {
	startRequest(c)

	path, cleanup, ok := s.stageUpload(c)
	if !ok {
		return
	}
	defer cleanup()

	if !s.acquire(c) {
		return
	}
	defer s.sem.Release(1)

	t, err := s.translator.TranslateFile(c.Request.Context(), path)
	s.respond(c, t, err)
}

func (s *Server) handleTranslateVideo(c *gin.Context) {
	requestID := startRequest(c)

	path, cleanup, ok := s.stageUpload(c)
	if !ok {
		return
	}
	defer cleanup()

	if !s.acquire(c) {
		return
	}
	defer s.sem.Release(1)

	t, err := s.translator.TranslateVideo(c.Request.Context(), requestID, path)
	s.respond(c, t, err)
}

func startRequest(c *gin.Context) string {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return id
}

// readForm parses the multipart body under the upload limit
func (s *Server) readForm(c *gin.Context) (*multipart.Form, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes),
				"kind":  gateway.KindInput.String(),
			})
			return nil, false
		}
		abortInput(c, "expected multipart/form-data upload")
		return nil, false
	}
	return form, true
}

// stageUpload stores the single "file" part in a temp file for programs that
// take a path
func (s *Server) stageUpload(c *gin.Context) (string, func(), bool) {
	form, ok := s.readForm(c)
	if !ok {
		return "", nil, false
	}

	files := form.File["file"]
	if len(files) == 0 {
		abortInput(c, "no file uploaded")
		return "", nil, false
	}
	fh := files[0]

	tmp, err := os.CreateTemp(s.cfg.TempDir, "signbridge-*"+filepath.Ext(fh.Filename))
	if err != nil {
		slog.Error("failed to create upload temp file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return "", nil, false
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove upload temp file", "path", tmp.Name(), "error", err)
		}
	}

	src, err := fh.Open()
	if err == nil {
		_, err = io.Copy(tmp, src)
		src.Close()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		slog.Error("failed to store upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return "", nil, false
	}

	return tmp.Name(), cleanup, true
}

// acquire waits for a translation slot; the wait ends with the request
func (s *Server) acquire(c *gin.Context) bool {
	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "server busy",
			"kind":  gateway.KindCanceled.String(),
		})
		return false
	}
	return true
}

func (s *Server) respond(c *gin.Context, t types.Translation, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, translationResponse{
		InvocationID: t.InvocationID,
		Mode:         t.Mode,
		Result:       t.Result,
		Cached:       t.Cached,
		Frames:       t.Frames,
		DurationMS:   t.DurationMS(),
	})
}

// writeError maps a failure to its status. Raw classifier output stays in
// the logs.
func writeError(c *gin.Context, err error) {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		slog.Error("translation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{
		"error": publicMessage(gerr),
		"kind":  gerr.Kind.String(),
	}
	var inv *translator.InvocationError
	if errors.As(err, &inv) && inv.InvocationID != "" {
		body["invocation_id"] = inv.InvocationID
	}
	if gerr.Kind == gateway.KindProcess {
		body["exit_code"] = gerr.ExitCode
	}

	c.JSON(statusForKind(gerr.Kind), body)
}

func publicMessage(e *gateway.Error) string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func statusForKind(k gateway.Kind) int {
	switch k {
	case gateway.KindInput:
		return http.StatusBadRequest
	case gateway.KindSpawn:
		return http.StatusServiceUnavailable
	case gateway.KindProcess, gateway.KindParse:
		return http.StatusBadGateway
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout
	case gateway.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortInput(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": msg,
		"kind":  gateway.KindInput.String(),
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
