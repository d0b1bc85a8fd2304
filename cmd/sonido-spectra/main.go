package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-spectra/analyzer"
	"github.com/RyanBlaney/sonido-spectra/backend"
	"github.com/RyanBlaney/sonido-spectra/config"
	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/render"
	"github.com/RyanBlaney/sonido-spectra/server"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sonido-spectra:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	var logger logging.Logger
	if cfg.LogFormat == "json" {
		logger = logging.NewJSONLogger(os.Stderr, level)
	} else {
		logger = logging.NewDefaultLogger()
		logger.SetLevel(level)
	}
	logging.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	decoder := transcode.NewDecoder(cfg.DecoderConfig())
	if err := decoder.CheckFFmpeg(ctx); err != nil {
		logger.Warn("ffmpeg unavailable, ogg uploads will fail", logging.Fields{
			"ffmpeg_path": cfg.FFmpegPath,
			"error":       err.Error(),
		})
	}

	dsp := backend.NewDSP(
		backend.WithTransformer(cfg.FFTBackend),
		backend.WithLogger(logger.WithFields(logging.Fields{"component": "dsp_backend"})),
	)
	srv := server.New(decoder, analyzer.New(dsp), render.NewRenderer(cfg.PlotWidth, cfg.PlotHeight), server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", httpServer.Addr, err)
	}

	logger.Info("Listening", logging.Fields{
		"addr":    ln.Addr().String(),
		"backend": dsp.Name(),
		"formats": decoder.SupportedFormats(),
	})
	if err := serve(ctx, httpServer, ln, logger); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// serve runs srv on ln until ctx is done, then drains in-flight requests
// for up to shutdownTimeout before returning.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger logging.Logger) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Graceful shutdown failed")
		}
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	// Serve returns as soon as Shutdown closes the listener
	<-shutdownDone
	return nil
}
