package transcode

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnsupportedFormat is returned for uploads whose extension is not allowed.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidAudio is returned when decoded audio breaks a buffer invariant.
	ErrInvalidAudio = errors.New("invalid audio data")
	// ErrDecode is returned when an upload cannot be decoded.
	ErrDecode = errors.New("undecodable audio")
)

// AudioData represents a decoded, mono audio buffer. It is never mutated
// after decoding; effects build new slices.
type AudioData struct {
	PCM            []float64       `json:"-"`
	SampleRate     int             `json:"sample_rate"`
	Channels       int             `json:"channels"`
	SourceChannels int             `json:"source_channels"`
	Duration       time.Duration   `json:"duration"`
	Format         string          `json:"format"`
	Metadata       *StreamMetadata `json:"metadata,omitempty"`
}

// StreamMetadata describes where the buffer came from.
type StreamMetadata struct {
	Filename    string `json:"filename"`
	Codec       string `json:"codec,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"`
	BitDepth    int    `json:"bit_depth,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Decoder     string `json:"decoder"`
}

// NewAudioData builds a mono buffer and validates it.
func NewAudioData(pcm []float64, sampleRate int) (*AudioData, error) {
	a := &AudioData{
		PCM:            pcm,
		SampleRate:     sampleRate,
		Channels:       1,
		SourceChannels: 1,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.Duration = durationOf(len(pcm), sampleRate)
	return a, nil
}

// Validate enforces the buffer invariants: positive sample rate, non-empty,
// finite samples.
func (a *AudioData) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, a.SampleRate)
	}
	if len(a.PCM) == 0 {
		return fmt.Errorf("%w: no samples decoded", ErrInvalidAudio)
	}
	for i, s := range a.PCM {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: non-finite sample at index %d", ErrInvalidAudio, i)
		}
	}
	return nil
}

// DurationSeconds returns len(PCM)/SampleRate.
func (a *AudioData) DurationSeconds() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.PCM)) / float64(a.SampleRate)
}

func durationOf(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// getAudioDivisor returns the full-scale value for a signed PCM bit depth.
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

func contentTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "aac", "m4a":
		return "audio/aac"
	default:
		return "audio/unknown"
	}
}
