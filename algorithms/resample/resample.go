// Package resample converts sample rates with a Kaiser-windowed sinc
// interpolator. Rates are real valued so fractional ratios such as the ones
// produced by pitch shifting need no rounding.
package resample

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-spectra/algorithms/windowing"
)

// Interpolation filter defaults.
const (
	DefaultZeroCrossings = 32   // sinc zero crossings on each side
	DefaultRolloff       = 0.95 // passband edge relative to the lower Nyquist
)

// Resampler is a band-limited interpolator. A Resampler has no per-call
// state and is safe for concurrent use.
type Resampler struct {
	zeroCrossings int
	rolloff       float64
	beta          float64
	windowTable   []float64 // Kaiser window sampled over |x| in [0, 1]
}

// blockSize is the number of output samples computed between context checks.
const blockSize = 4096

// windowTableSize is the number of precomputed Kaiser window samples; values
// in between are linearly interpolated.
const windowTableSize = 4096

// New creates a resampler with the given sinc half-length (in zero
// crossings), rolloff and Kaiser beta.
func New(zeroCrossings int, rolloff, beta float64) (*Resampler, error) {
	if zeroCrossings < 1 {
		return nil, fmt.Errorf("zero crossings must be positive, got %d", zeroCrossings)
	}
	if rolloff <= 0 || rolloff > 1 {
		return nil, fmt.Errorf("rolloff must be in (0, 1], got %f", rolloff)
	}
	if beta < 0 {
		return nil, fmt.Errorf("kaiser beta must be non-negative, got %f", beta)
	}
	r := &Resampler{
		zeroCrossings: zeroCrossings,
		rolloff:       rolloff,
		beta:          beta,
	}
	r.precomputeWindow()
	return r, nil
}

// precomputeWindow keeps the right half of a symmetric Kaiser window, so
// entry i is w(i/windowTableSize) = I0(beta*sqrt(1-x^2)) / I0(beta).
func (r *Resampler) precomputeWindow() {
	full := windowing.NewKaiser(2*windowTableSize+1, r.beta, true).Coefficients()
	r.windowTable = full[windowTableSize:]
}

func (r *Resampler) lookupWindow(x float64) float64 {
	pos := math.Abs(x) * windowTableSize
	idx := int(pos)
	if idx >= windowTableSize {
		return r.windowTable[windowTableSize]
	}
	frac := pos - float64(idx)
	return r.windowTable[idx]*(1-frac) + r.windowTable[idx+1]*frac
}

// NewDefault returns a high quality resampler.
func NewDefault() *Resampler {
	r, _ := New(DefaultZeroCrossings, DefaultRolloff, windowing.DefaultKaiserBeta)
	return r
}

// OutputLength is the number of samples produced for n input samples:
// ceil(n * to / from).
func OutputLength(n int, fromRate, toRate float64) int {
	return int(math.Ceil(float64(n) * toRate / fromRate))
}

// Resample converts input from fromRate to toRate.
//
// Each output sample at input position t is
//
//	y(t) = Σ x[k] · fc · sinc(fc·(t-k)) · w((t-k)/half)
//
// where fc = rolloff·min(1, toRate/fromRate) keeps the result below the
// lower of the two Nyquist frequencies and w is a Kaiser window over the
// half = zeroCrossings/fc sample support. ctx is checked between blocks of
// output samples.
func (r *Resampler) Resample(ctx context.Context, input []float64, fromRate, toRate float64) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 || math.IsNaN(fromRate) || math.IsNaN(toRate) {
		return nil, fmt.Errorf("sample rates must be positive, got %f -> %f", fromRate, toRate)
	}
	if len(input) == 0 {
		return []float64{}, nil
	}
	if fromRate == toRate {
		out := make([]float64, len(input))
		copy(out, input)
		return out, nil
	}

	ratio := toRate / fromRate
	fc := r.rolloff * math.Min(1, ratio)
	half := float64(r.zeroCrossings) / fc
	step := fromRate / toRate

	output := make([]float64, OutputLength(len(input), fromRate, toRate))
	for n := range output {
		if n%blockSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("resample cancelled: %w", err)
			}
		}
		t := float64(n) * step

		lo := max(int(math.Ceil(t-half)), 0)
		hi := min(int(math.Floor(t+half)), len(input)-1)

		sum := 0.0
		for k := lo; k <= hi; k++ {
			d := t - float64(k)
			sum += input[k] * r.kernel(d, fc, half)
		}
		output[n] = sum
	}

	return output, nil
}

// kernel evaluates the windowed sinc at offset d (input samples).
func (r *Resampler) kernel(d, fc, half float64) float64 {
	x := d / half
	if x <= -1 || x >= 1 {
		return 0
	}
	return fc * sinc(fc*d) * r.lookupWindow(x)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// FixLength trims or zero-pads x to exactly n samples.
func FixLength(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}
