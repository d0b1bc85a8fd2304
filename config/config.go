// Package config loads runtime configuration from SONIDO_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/render"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port           int
	MaxUploadMB    int
	RequestTimeout time.Duration

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json

	// Decoding
	AllowedExtensions []string
	FFmpegPath        string
	FFprobePath       string
	DecodeTimeout     time.Duration

	// Analysis
	FFTBackend string // godsp or fourier
	PlotWidth  int    // points
	PlotHeight int    // points
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	decoder := transcode.DefaultDecoderConfig()

	return Config{
		Port:           envInt("SONIDO_PORT", 8080),
		MaxUploadMB:    envInt("SONIDO_MAX_UPLOAD_MB", 50),
		RequestTimeout: envDuration("SONIDO_REQUEST_TIMEOUT", 2*time.Minute),

		LogLevel:  envStr("SONIDO_LOG_LEVEL", "info"),
		LogFormat: envStr("SONIDO_LOG_FORMAT", "text"),

		AllowedExtensions: envList("SONIDO_ALLOWED_EXTENSIONS", decoder.AllowedExtensions),
		FFmpegPath:        envStr("SONIDO_FFMPEG_PATH", decoder.FFmpegPath),
		FFprobePath:       envStr("SONIDO_FFPROBE_PATH", decoder.FFprobePath),
		DecodeTimeout:     envDuration("SONIDO_DECODE_TIMEOUT", decoder.Timeout),

		FFTBackend: envStr("SONIDO_FFT_BACKEND", "godsp"),
		PlotWidth:  envInt("SONIDO_PLOT_WIDTH", render.DefaultWidth),
		PlotHeight: envInt("SONIDO_PLOT_HEIGHT", render.DefaultHeight),
	}
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1-65535, got %d", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d MB", c.MaxUploadMB)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	switch c.FFTBackend {
	case "godsp", "fourier":
	default:
		return fmt.Errorf("fft backend must be godsp or fourier, got %q", c.FFTBackend)
	}
	if c.PlotWidth <= 0 || c.PlotHeight <= 0 {
		return fmt.Errorf("plot size must be positive, got %dx%d", c.PlotWidth, c.PlotHeight)
	}
	return transcode.NewDecoder(c.DecoderConfig()).ValidateConfig()
}

// DecoderConfig converts the decoding settings for transcode.NewDecoder.
func (c Config) DecoderConfig() *transcode.DecoderConfig {
	cfg := transcode.DefaultDecoderConfig()
	cfg.FFmpegPath = c.FFmpegPath
	cfg.FFprobePath = c.FFprobePath
	cfg.Timeout = c.DecodeTimeout
	cfg.AllowedExtensions = c.AllowedExtensions
	return cfg
}

// MaxUploadBytes is the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// envList splits a comma separated value, lower-casing and dropping dots.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item), "."))
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
