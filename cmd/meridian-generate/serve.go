package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-ollama-go/lorem"
)

// Serve-specific flag values.
var (
	serveAddr      string
	serveFailFirst int
	serveWordDelay time.Duration
)

// serveCmd runs the lorem mock service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a lorem ipsum mock of the generate endpoint",
	Long: `Serve POST /api/generate with streamed lorem ipsum text.

Model names must start with "lorem-". "fast", "slow" and "instant" select the
stream speed; the suffixes -error, -malformed, -truncated and -nocontext
inject faults.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:11434", "listen address")
	serveCmd.Flags().IntVar(&serveFailFirst, "fail-first", 0, "answer the first n requests with HTTP 503")
	serveCmd.Flags().DurationVar(&serveWordDelay, "word-delay", 0, "fixed delay between words, overriding the model speed")
}

func runServe(cmd *cobra.Command, _ []string) error {
	opts := []lorem.Option{lorem.WithFailFirst(serveFailFirst), lorem.WithLogger(slog.Default())}
	if cmd.Flags().Changed("word-delay") {
		opts = append(opts, lorem.WithWordDelay(serveWordDelay))
	}

	ln, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return exitError(ExitInvalidArgs, "meridian-generate: listen %s: %v", serveAddr, err)
	}

	srv := &http.Server{
		Handler:           lorem.NewServer(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s http://%s\n", color.New(color.Bold).Sprint("serving lorem on"), ln.Addr())
	slog.Info("lorem server started", "addr", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("meridian-generate: serve: %w", err)
	}
	return nil
}
