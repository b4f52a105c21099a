package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/signbridge/internal/config"
	"github.com/e7canasta/signbridge/internal/gateway"
	"github.com/e7canasta/signbridge/internal/types"
)

// invokeCmd runs a single classifier invocation and prints its JSON result
// to stdout. Failures print the error kind to stderr and exit non-zero.
func invokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one classifier invocation without the HTTP server",
	}
	cmd.AddCommand(invokeFramesCmd())
	cmd.AddCommand(invokeScriptCmd())
	cmd.AddCommand(invokeDecodeCmd())
	return cmd
}

func invokeFramesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "frames FILE...",
		Short: "Send image files to the configured classifier as a framed batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			payloads := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read frame: %w", err)
				}
				payloads = append(payloads, data)
			}

			gw := gateway.New(gateway.Settings{
				Timeout:        cfg.Classifier.Timeout(),
				TailLines:      cfg.Classifier.TailLines,
				MaxOutputBytes: cfg.Classifier.MaxOutputBytes,
				WaitDelay:      cfg.Classifier.WaitDelay(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := gw.RunFramed(ctx, gateway.Request{
				Program: cfg.Classifier.Program,
				Args:    cfg.Classifier.Args,
				Dir:     cfg.Classifier.Dir,
				Env:     cfg.Classifier.Env,
			}, types.NewFrameBatch("cli", "cli", payloads))
			return printOutcome(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	return cmd
}

func invokeScriptCmd() *cobra.Command {
	var (
		timeout   time.Duration
		tailLines int
	)

	cmd := &cobra.Command{
		Use:   "script PROGRAM [ARG...]",
		Short: "Run a program and scan the end of its output for a JSON result",
		Example: `  signbridged invoke script python3 models/predict.py clip.mp4
  signbridged invoke script --timeout 30s -- ./predict --verbose clip.mp4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := gateway.New(gateway.Settings{
				Timeout:   timeout,
				TailLines: tailLines,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := gw.RunScanned(ctx, gateway.Request{
				Program: args[0],
				Args:    args[1:],
			})
			return printOutcome(cmd, out)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", gateway.DefaultTimeout, "Kill the program after this long")
	cmd.Flags().IntVar(&tailLines, "tail-lines", gateway.DefaultTailLines, "Trailing output lines to scan for the result")

	return cmd
}

// decodedFrame summarizes one frame of a decoded envelope
type decodedFrame struct {
	Index  int    `json:"index"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// invokeDecodeCmd reads a framed envelope, as a classifier would receive it
// on stdin, and prints a summary of its frames. Useful for checking what a
// capture or a recorded request actually contains.
func invokeDecodeCmd() *cobra.Command {
	var (
		path     string
		maxFrame uint32
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Summarize a framed envelope read from stdin or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open envelope: %w", err)
				}
				defer f.Close()
				in = f
			}

			frames, err := gateway.ReadEnvelope(bufio.NewReader(in), maxFrame)
			if err != nil {
				return fmt.Errorf("failed to decode envelope: %w", err)
			}

			summary := make([]decodedFrame, len(frames))
			for i, f := range frames {
				sum := sha256.Sum256(f)
				summary[i] = decodedFrame{Index: i, Bytes: len(f), SHA256: hex.EncodeToString(sum[:])}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(map[string]any{
				"count":  len(frames),
				"frames": summary,
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Read the envelope from a file instead of stdin")
	cmd.Flags().Uint32Var(&maxFrame, "max-frame-bytes", 64<<20, "Reject frames larger than this (0 disables)")

	return cmd
}

func printOutcome(cmd *cobra.Command, out gateway.Outcome) error {
	if !out.OK() {
		if out.Err.Stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), out.Err.Stderr)
		}
		return fmt.Errorf("%s: %w", out.Err.Kind, out.Err)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), string(out.Value))
	return err
}
