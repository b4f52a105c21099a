// Package main provides the signbridged binary entry point.
// signbridged serves sign-language translation over HTTP by delegating
// classification to external programs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/e7canasta/signbridge/internal/app"
)

const (
	Version           = "0.1.0"
	appName           = "signbridged"
	defaultConfigPath = "config/signbridge.yaml"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Sign-language translation gateway",
		Long: `signbridged accepts frame, file and video uploads and hands them to an
external classifier program, either as a framed binary stream on stdin or
as a file path argument, and returns the program's JSON result.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// invoke prints its result on stdout
			out := io.Writer(os.Stdout)
			if p := cmd.Parent(); p != nil && p.Name() == "invoke" {
				out = os.Stderr
			}
			setupLogger(out, debug)
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(serveCmd(&debug))
	cmd.AddCommand(invokeCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// setupLogger installs the structured JSON logger
func setupLogger(w io.Writer, debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

func serveCmd(debug *bool) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, *debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	return cmd
}

func serve(configPath string, debug bool) error {
	slog.Info("starting signbridge service",
		"config", configPath,
		"debug", debug,
	)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	svc, err := app.New(configPath, app.WithDebug(debug))
	if err != nil {
		return fmt.Errorf("failed to create signbridge service: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Run(ctx)
	}()

	// Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case runErr = <-errChan:
		if runErr != nil {
			slog.Error("service error", "error", runErr)
		}
	}

	shutdownTimeout := svc.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("signbridge service stopped successfully")
	return runErr
}
