package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-spectra/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath        string        `json:"ffmpeg_path"`        // Path to ffmpeg binary
	FFprobePath       string        `json:"ffprobe_path"`       // Path to ffprobe binary
	Timeout           time.Duration `json:"timeout"`            // Timeout for ffmpeg operations
	MaxDuration       time.Duration `json:"max_duration"`       // 0 = no limit
	AllowedExtensions []string      `json:"allowed_extensions"` // lower case, no dot
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		Timeout:           30 * time.Second,
		MaxDuration:       0,
		AllowedExtensions: []string{"mp3", "wav", "ogg", "flac"},
	}
}

// commandRunner runs an external tool with stdin and returns its stdout.
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", name, err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}

// Decoder turns uploaded bytes into a mono AudioData at the file's native
// sample rate. WAV, MP3 and FLAC are decoded in-process; every other allowed
// container goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
	run    commandRunner
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config, run: execRunner}
}

// FormatOf returns the lower-case extension of filename without the dot.
func FormatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// IsAllowed reports whether filename carries an allowed extension.
func (d *Decoder) IsAllowed(filename string) bool {
	format := FormatOf(filename)
	return format != "" && slices.Contains(d.config.AllowedExtensions, format)
}

// DecodeBytes decodes an uploaded file. The extension selects the decoder;
// decoding errors are returned as-is, wrapped with the file name.
func (d *Decoder) DecodeBytes(ctx context.Context, filename string, data []byte) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"filename":  filename,
		"data_size": len(data),
	})

	if !d.IsAllowed(filename) {
		return nil, fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFormat, filepath.Ext(filename),
			strings.Join(d.config.AllowedExtensions, ", "))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidAudio)
	}

	format := FormatOf(filename)
	logger.Debug("Starting audio bytes decode", logging.Fields{"format": format})

	var (
		out     *decoded
		err     error
		backend = "native"
	)
	switch format {
	case "wav":
		out, err = decodeWAV(data)
	case "mp3":
		out, err = decodeMP3(data)
	case "flac":
		out, err = decodeFLAC(data)
	default:
		backend = "ffmpeg"
		out, err = d.decodeWithFFmpeg(ctx, data)
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio")
		return nil, fmt.Errorf("decode %s: %w: %w", filename, ErrDecode, err)
	}

	mono := downmix(out.interleaved, out.channels)
	if d.config.MaxDuration > 0 && out.sampleRate > 0 {
		maxSamples := int(d.config.MaxDuration.Seconds() * float64(out.sampleRate))
		if len(mono) > maxSamples {
			mono = mono[:maxSamples]
		}
	}

	audio := &AudioData{
		PCM:            mono,
		SampleRate:     out.sampleRate,
		Channels:       1,
		SourceChannels: out.channels,
		Duration:       durationOf(len(mono), out.sampleRate),
		Format:         format,
		Metadata: &StreamMetadata{
			Filename:    filepath.Base(filename),
			Codec:       out.codec,
			BitDepth:    out.bitDepth,
			ContentType: contentTypeFor(format),
			Decoder:     backend,
		},
	}
	if err := audio.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	logger.Debug("Audio decode completed", logging.Fields{
		"sample_rate":     audio.SampleRate,
		"source_channels": audio.SourceChannels,
		"samples":         len(audio.PCM),
		"duration":        audio.DurationSeconds(),
		"decoder":         backend,
	})

	return audio, nil
}

// decodeWithFFmpeg probes the stream and decodes it to interleaved float64
// at the probed sample rate and channel count.
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte) (*decoded, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeWithFFmpeg",
	})

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	metadata, err := d.probeAudioMetadata(ctx, data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	args := d.buildFFmpegArgs(metadata)
	output, err := d.run(ctx, data, d.config.FFmpegPath, args...)
	if err != nil {
		return nil, err
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	return &decoded{
		interleaved: samples,
		sampleRate:  metadata.SampleRate,
		channels:    metadata.Channels,
		codec:       metadata.Codec,
	}, nil
}

// probeAudioMetadata uses ffprobe to get input audio information from bytes
func (d *Decoder) probeAudioMetadata(ctx context.Context, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		"pipe:0",
	}

	output, err := d.run(ctx, data, d.config.FFprobePath, args...)
	if err != nil {
		return nil, err
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	// the native rate is the whole point of the probe, so no fallback here
	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// buildFFmpegArgs builds the ffmpeg arguments for a stdin -> stdout decode
// that keeps the source rate and layout.
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-i", "pipe:0",
		"-vn",
		"-f", "f64le",
		"-ac", strconv.Itoa(metadata.Channels),
		"-ar", strconv.Itoa(metadata.SampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "-v", "error", "pipe:1")
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", d.config.Timeout)
	}
	if len(d.config.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	return nil
}

// CheckFFmpeg reports whether ffmpeg and ffprobe can be executed. Only the
// ffmpeg-backed formats need them.
func (d *Decoder) CheckFFmpeg(ctx context.Context) error {
	if _, err := d.run(ctx, nil, d.config.FFmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	if _, err := d.run(ctx, nil, d.config.FFprobePath, "-version"); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", d.config.FFprobePath, err)
	}
	return nil
}

// SupportedFormats returns the allowed upload extensions.
func (d *Decoder) SupportedFormats() []string {
	return slices.Clone(d.config.AllowedExtensions)
}
