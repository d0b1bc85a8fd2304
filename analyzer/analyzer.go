// Package analyzer implements the inspection views and effects on top of a
// backend.Backend. Every call takes the decoded buffer and its parameters
// explicitly; nothing is cached between calls. Long-running calls stop when
// their context is done.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-spectra/algorithms/spectral"
	"github.com/RyanBlaney/sonido-spectra/algorithms/temporal"
	"github.com/RyanBlaney/sonido-spectra/backend"
	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

// ErrInvalidParameter is returned when an effect parameter is outside its
// accepted range.
var ErrInvalidParameter = errors.New("invalid parameter")

// Spectrogram dB scaling.
const (
	SpectrogramAmin  = 1e-5
	SpectrogramTopDB = 80.0
)

// Analyzer runs views and effects through a backend.
type Analyzer struct {
	backend backend.Backend
	logger  logging.Logger
}

// New creates an analyzer. A nil backend uses backend.NewDSP().
func New(b backend.Backend) *Analyzer {
	if b == nil {
		b = backend.NewDSP()
	}
	return &Analyzer{
		backend: b,
		logger: logging.WithFields(logging.Fields{
			"component": "analyzer",
			"backend":   b.Name(),
		}),
	}
}

// Backend returns the backend in use.
func (a *Analyzer) Backend() backend.Backend {
	return a.backend
}

// Properties describes an uploaded buffer.
type Properties struct {
	DurationSeconds   float64              `json:"duration_seconds"`
	SampleRate        int                  `json:"sample_rate"`
	Channels          int                  `json:"channels"`
	SourceChannels    int                  `json:"source_channels"`
	Samples           int                  `json:"samples"`
	Format            string               `json:"format"`
	Decoder           string               `json:"decoder,omitempty"`
	Levels            temporal.Levels      `json:"levels"`
	DominantFrequency float64              `json:"dominant_frequency_hz"`
	ZeroCrossingRate  float64              `json:"zero_crossing_rate"`
	Spectral          spectral.Descriptors `json:"spectral"`
}

// Properties reports duration (len/sr), rate, channel counts and a level and
// spectral summary. The spectral figures come from the mean STFT magnitude.
func (a *Analyzer) Properties(ctx context.Context, audio *transcode.AudioData) (*Properties, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	pcm := audio.PCM

	props := &Properties{
		DurationSeconds:  audio.DurationSeconds(),
		SampleRate:       audio.SampleRate,
		Channels:         audio.Channels,
		SourceChannels:   audio.SourceChannels,
		Samples:          len(pcm),
		Format:           audio.Format,
		Levels:           temporal.Measure(pcm, audio.SampleRate),
		ZeroCrossingRate: spectral.ZeroCrossingRate(pcm),
	}
	if audio.Metadata != nil {
		props.Decoder = audio.Metadata.Decoder
	}

	res, err := a.backend.STFT(ctx, pcm, audio.SampleRate, spectral.DefaultWindowSize, spectral.DefaultHopSize)
	if err != nil {
		return nil, fmt.Errorf("spectral summary failed: %w", err)
	}
	mean := make([]float64, res.FreqBins)
	for _, frame := range res.Magnitude {
		floats.Add(mean, frame)
	}
	floats.Scale(1/float64(res.TimeFrames), mean)

	freqs := res.FrameFrequencies()
	props.DominantFrequency = freqs[floats.MaxIdx(mean)]
	props.Spectral = spectral.Describe(freqs, mean)

	a.logger.Debug("Properties computed", logging.Fields{
		"duration":    props.DurationSeconds,
		"sample_rate": props.SampleRate,
		"samples":     props.Samples,
	})

	return props, nil
}

// Spectrum is the n_fft = 2048 Fourier view of the buffer.
func (a *Analyzer) Spectrum(ctx context.Context, audio *transcode.AudioData) (*spectral.Spectrum, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	spec, err := a.backend.FFT(ctx, audio.PCM, audio.SampleRate, spectral.DefaultFourierSize)
	if err != nil {
		return nil, fmt.Errorf("fourier transform failed: %w", err)
	}
	return spec, nil
}

// Spectrogram is a dB-scaled STFT, time x frequency, referenced to its
// maximum and clipped 80 dB below it.
type Spectrogram struct {
	Times       []float64   `json:"times"`
	Frequencies []float64   `json:"frequencies"`
	DB          [][]float64 `json:"db"`
	SampleRate  int         `json:"sample_rate"`
	WindowSize  int         `json:"window_size"`
	HopSize     int         `json:"hop_size"`
}

// Spectrogram computes the centered STFT (2048/512, Hann) in dB.
func (a *Analyzer) Spectrogram(ctx context.Context, audio *transcode.AudioData) (*Spectrogram, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	res, err := a.backend.STFT(ctx, audio.PCM, audio.SampleRate, spectral.DefaultWindowSize, spectral.DefaultHopSize)
	if err != nil {
		return nil, fmt.Errorf("stft failed: %w", err)
	}

	return &Spectrogram{
		Times:       res.FrameTimes(),
		Frequencies: res.FrameFrequencies(),
		DB:          spectral.AmplitudeToDB(res.Magnitude, SpectrogramAmin, SpectrogramTopDB),
		SampleRate:  res.SampleRate,
		WindowSize:  res.WindowSize,
		HopSize:     res.HopSize,
	}, nil
}

func checkAudio(audio *transcode.AudioData) error {
	if audio == nil {
		return fmt.Errorf("%w: no audio", transcode.ErrInvalidAudio)
	}
	return audio.Validate()
}
