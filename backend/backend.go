// Package backend defines the signal processing operations the analyzer
// needs and a default implementation composed from the algorithms packages.
package backend

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-spectra/algorithms/filters"
	"github.com/RyanBlaney/sonido-spectra/algorithms/resample"
	"github.com/RyanBlaney/sonido-spectra/algorithms/spectral"
	"github.com/RyanBlaney/sonido-spectra/algorithms/vocoder"
	"github.com/RyanBlaney/sonido-spectra/logging"
)

// Backend is the set of numeric primitives behind every view and effect.
// Operations that walk a whole signal take a context and return its error
// once it is done.
type Backend interface {
	// Name identifies the implementation, e.g. "dsp/godsp".
	Name() string

	// FFT returns the nFFT-point two-sided magnitude spectrum.
	FFT(ctx context.Context, signal []float64, sampleRate, nFFT int) (*spectral.Spectrum, error)

	// STFT returns a centered short-time transform.
	STFT(ctx context.Context, signal []float64, sampleRate, windowSize, hopSize int) (*spectral.STFTResult, error)

	Resample(ctx context.Context, signal []float64, fromRate, toRate float64) ([]float64, error)
	PitchShift(ctx context.Context, signal []float64, sampleRate int, semitones float64) ([]float64, error)
	TimeStretch(ctx context.Context, signal []float64, rate float64) ([]float64, error)

	DesignLowPass(order int, cutoff float64, sampleRate int) (filters.SOS, error)

	// ApplyFilter runs the cascade forward and backward (zero phase).
	ApplyFilter(ctx context.Context, sos filters.SOS, signal []float64) ([]float64, error)

	// PreEmphasis computes y[n] = x[n] - coef*x[n-1].
	PreEmphasis(signal []float64, coef float64) []float64
}

// DSP is the in-process Backend.
type DSP struct {
	transformer spectral.Transformer
	stft        *spectral.STFT
	resampler   *resample.Resampler
	vocoder     *vocoder.Vocoder
	logger      logging.Logger
}

// Option configures a DSP backend.
type Option func(*DSP)

// WithTransformer selects the FFT implementation by name ("godsp" or
// "fourier").
func WithTransformer(name string) Option {
	return func(d *DSP) {
		d.transformer = spectral.NewTransformer(name)
	}
}

// WithResampler replaces the default resampler.
func WithResampler(r *resample.Resampler) Option {
	return func(d *DSP) {
		d.resampler = r
	}
}

// WithLogger sets the logger used for backend diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(d *DSP) {
		d.logger = l
	}
}

// NewDSP builds a backend from the algorithms packages.
func NewDSP(opts ...Option) *DSP {
	d := &DSP{}
	for _, opt := range opts {
		opt(d)
	}

	if d.transformer == nil {
		d.transformer = spectral.NewFFT()
	}
	if d.resampler == nil {
		d.resampler = resample.NewDefault()
	}
	if d.logger == nil {
		d.logger = logging.WithFields(logging.Fields{"component": "backend"})
	}

	d.stft = spectral.NewSTFT(d.transformer)
	d.vocoder = vocoder.New(d.transformer, d.resampler)

	d.logger.Debug("DSP backend ready", logging.Fields{
		"transformer": d.transformer.Name(),
	})
	return d
}

func (d *DSP) Name() string { return "dsp/" + d.transformer.Name() }

func (d *DSP) FFT(ctx context.Context, signal []float64, sampleRate, nFFT int) (*spectral.Spectrum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return spectral.ComputeFourier(d.transformer, signal, sampleRate, nFFT)
}

func (d *DSP) STFT(ctx context.Context, signal []float64, sampleRate, windowSize, hopSize int) (*spectral.STFTResult, error) {
	if windowSize <= 0 {
		windowSize = spectral.DefaultWindowSize
	}
	if hopSize <= 0 {
		hopSize = windowSize / 4
	}
	return d.stft.ComputeCentered(ctx, signal, windowSize, hopSize, sampleRate, nil)
}

func (d *DSP) Resample(ctx context.Context, signal []float64, fromRate, toRate float64) ([]float64, error) {
	return d.resampler.Resample(ctx, signal, fromRate, toRate)
}

func (d *DSP) PitchShift(ctx context.Context, signal []float64, sampleRate int, semitones float64) ([]float64, error) {
	return d.vocoder.PitchShift(ctx, signal, sampleRate, semitones)
}

func (d *DSP) TimeStretch(ctx context.Context, signal []float64, rate float64) ([]float64, error) {
	return d.vocoder.TimeStretch(ctx, signal, rate)
}

func (d *DSP) DesignLowPass(order int, cutoff float64, sampleRate int) (filters.SOS, error) {
	sos, err := filters.DesignButterworthLowPass(order, cutoff, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("low-pass design failed: %w", err)
	}
	return sos, nil
}

func (d *DSP) ApplyFilter(ctx context.Context, sos filters.SOS, signal []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sos.FiltFilt(signal), nil
}

func (d *DSP) PreEmphasis(signal []float64, coef float64) []float64 {
	return filters.NewPreEmphasis(coef).ProcessBufferExtrapolated(signal)
}

var _ Backend = (*DSP)(nil)
