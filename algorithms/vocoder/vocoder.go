// Package vocoder implements phase-vocoder time stretching and the pitch
// shift built on it.
package vocoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-spectra/algorithms/resample"
	"github.com/RyanBlaney/sonido-spectra/algorithms/spectral"
	"github.com/RyanBlaney/sonido-spectra/algorithms/windowing"
	"github.com/RyanBlaney/sonido-spectra/logging"
)

// BinsPerOctave is the number of pitch steps per octave used by PitchShift.
const BinsPerOctave = 12

// ErrInvalidRate is returned for non-positive or non-finite stretch rates.
var ErrInvalidRate = errors.New("stretch rate must be positive and finite")

// Vocoder stretches and shifts audio using a centered STFT with a periodic
// Hann window.
type Vocoder struct {
	stft       *spectral.STFT
	resampler  *resample.Resampler
	windowSize int
	hopSize    int
	logger     logging.Logger
}

// New creates a vocoder. Nil arguments select the go-dsp transformer and the
// default resampler.
func New(t spectral.Transformer, r *resample.Resampler) *Vocoder {
	if r == nil {
		r = resample.NewDefault()
	}
	return &Vocoder{
		stft:       spectral.NewSTFT(t),
		resampler:  r,
		windowSize: spectral.DefaultWindowSize,
		hopSize:    spectral.DefaultWindowSize / 4,
		logger:     logging.WithFields(logging.Fields{"component": "vocoder"}),
	}
}

// TimeStretch changes the duration of signal by 1/rate without changing its
// pitch. rate > 1 speeds up; the output has round(len/rate) samples with
// ties going to the even length. A rate of exactly 1 returns a copy of the
// input.
func (v *Vocoder) TimeStretch(ctx context.Context, signal []float64, rate float64) ([]float64, error) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if rate == 1 {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out, nil
	}

	res, err := v.stft.ComputeCentered(ctx, signal, v.windowSize, v.hopSize, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	stretched, err := PhaseVocoder(ctx, res.Complex, rate, v.hopSize, v.windowSize)
	if err != nil {
		return nil, err
	}
	length := int(math.RoundToEven(float64(len(signal)) / rate))

	window := windowing.NewHann(v.windowSize, false).Coefficients()
	out, err := spectral.ISTFT(ctx, v.stft.Transformer(), stretched, v.windowSize, v.hopSize, window, length)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	v.logger.Debug("Time stretch complete", logging.Fields{
		"rate":          rate,
		"input_frames":  res.TimeFrames,
		"output_frames": len(stretched),
		"length":        length,
	})

	return out, nil
}

// PitchShift moves signal by semitones without changing its duration: it
// time-stretches by 2^(-semitones/12), resamples from sampleRate/rate back
// to sampleRate and fixes the result to the input length. Zero semitones
// returns a copy of the input.
func (v *Vocoder) PitchShift(ctx context.Context, signal []float64, sampleRate int, semitones float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if math.IsNaN(semitones) || math.IsInf(semitones, 0) {
		return nil, fmt.Errorf("invalid pitch step: %v", semitones)
	}
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if semitones == 0 {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out, nil
	}

	rate := math.Pow(2, -semitones/BinsPerOctave)

	stretched, err := v.TimeStretch(ctx, signal, rate)
	if err != nil {
		return nil, err
	}

	shifted, err := v.resampler.Resample(ctx, stretched, float64(sampleRate)/rate, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("resample failed: %w", err)
	}

	return resample.FixLength(shifted, len(signal)), nil
}

// PhaseVocoder resamples a time x frequency STFT matrix in time by rate.
// Output frame t reads the input at position t*rate, linearly interpolating
// magnitudes between neighbouring frames and accumulating phase from the
// measured per-bin phase advance. ctx is checked before each output frame.
func PhaseVocoder(ctx context.Context, frames [][]complex128, rate float64, hopSize, windowSize int) ([][]complex128, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	bins := len(frames[0])

	// expected phase advance per hop for each bin
	advance := make([]float64, bins)
	for k := range advance {
		advance[k] = 2 * math.Pi * float64(hopSize) * float64(k) / float64(windowSize)
	}

	phase := make([]float64, bins)
	for k, c := range frames[0] {
		phase[k] = cmplx.Phase(c)
	}

	column := func(i int) []complex128 {
		if i < len(frames) {
			return frames[i]
		}
		return make([]complex128, bins)
	}

	steps := int(math.Ceil(float64(len(frames)) / rate))
	out := make([][]complex128, 0, steps)

	for t := 0; ; t++ {
		step := float64(t) * rate
		if step >= float64(len(frames)) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("phase vocoder cancelled: %w", err)
		}
		idx := int(step)
		alpha := step - float64(idx)
		left, right := column(idx), column(idx+1)

		frame := make([]complex128, bins)
		for k := range bins {
			mag := (1-alpha)*cmplx.Abs(left[k]) + alpha*cmplx.Abs(right[k])
			frame[k] = cmplx.Rect(mag, phase[k])

			dphase := cmplx.Phase(right[k]) - cmplx.Phase(left[k]) - advance[k]
			phase[k] += advance[k] + wrapPhase(dphase)
		}
		out = append(out, frame)
	}

	return out, nil
}

// wrapPhase maps a phase difference into [-pi, pi].
func wrapPhase(p float64) float64 {
	return p - 2*math.Pi*math.Round(p/(2*math.Pi))
}
