package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/signbridge/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus    func() map[string]any
	OnSetTimeout   func(time.Duration) error
	OnSetTailLines func(int) error
	OnShutdown     func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg       config.MQTTConfig
	client    mqtt.Client
	commands  chan Command
	callbacks CommandCallbacks
	now       func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new control plane handler
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start subscribes to the control topic and processes commands until ctx is
// done or Stop is called
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	qos := h.cfg.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop unsubscribes and ends command processing
func (h *Handler) Stop() error {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.Topics.Control)
			token.WaitTimeout(2 * time.Second)
		}
		close(h.done)
		slog.Info("control plane handler stopped")
	})
	return nil
}

// messageHandler is called by the MQTT client for every control message
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case <-h.done:
		slog.Warn("control plane stopped, dropping command", "command", cmd.Command)
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command and publishes its response
func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status, resp.Error = "error", "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "set_timeout":
		ms, err := intParam(cmd.Params, "timeout_ms")
		if err == nil && ms <= 0 {
			err = fmt.Errorf("timeout_ms must be > 0, got %d", ms)
		}
		if err == nil && h.callbacks.OnSetTimeout == nil {
			err = fmt.Errorf("set_timeout not implemented")
		}
		if err == nil {
			err = h.callbacks.OnSetTimeout(time.Duration(ms) * time.Millisecond)
		}
		if err != nil {
			resp.Status, resp.Error = "error", err.Error()
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{"timeout_ms": ms}

	case "set_tail_lines":
		n, err := intParam(cmd.Params, "tail_lines")
		if err == nil && n <= 0 {
			err = fmt.Errorf("tail_lines must be > 0, got %d", n)
		}
		if err == nil && h.callbacks.OnSetTailLines == nil {
			err = fmt.Errorf("set_tail_lines not implemented")
		}
		if err == nil {
			err = h.callbacks.OnSetTailLines(n)
		}
		if err != nil {
			resp.Status, resp.Error = "error", err.Error()
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{"tail_lines": n}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status, resp.Error = "error", "shutdown not implemented"
			break
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]any{
			"shutdown_initiated": true,
			"message":            "graceful shutdown in progress",
		}
		// Acknowledge before shutting down
		h.sendResponse(resp)
		go func() {
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse publishes a response to the responses topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = h.now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.Topics.Responses, h.cfg.QoS["control"], false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

// intParam reads a whole number from JSON-decoded params
func intParam(params map[string]any, name string) (int, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing param %q", name)
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("param %q must be an integer", name)
	}
	return int(f), nil
}
