// Package windowing provides tapering windows for frame-based spectral analysis.
package windowing

import (
	"fmt"
	"math"
)

// Type names a window shape.
type Type string

const (
	Hann   Type = "hann"
	Kaiser Type = "kaiser"
)

// DefaultKaiserBeta is the Kaiser shape used by the default resampler.
const DefaultKaiserBeta = 14.0

// Window holds precomputed window coefficients.
//
// Periodic windows (symmetric == false) divide by N instead of N-1, which is
// what STFT analysis with overlap-add resynthesis expects.
type Window struct {
	kind         Type
	size         int
	symmetric    bool
	beta         float64
	coefficients []float64
}

// NewHann creates a Hann window.
func NewHann(size int, symmetric bool) *Window {
	w := &Window{kind: Hann, size: max(size, 1), symmetric: symmetric}
	w.generate()
	return w
}

// NewKaiser creates a Kaiser window with shape parameter beta.
func NewKaiser(size int, beta float64, symmetric bool) *Window {
	w := &Window{kind: Kaiser, size: max(size, 1), symmetric: symmetric, beta: beta}
	w.generate()
	return w
}

func (w *Window) generate() {
	w.coefficients = make([]float64, w.size)
	if w.size == 1 {
		w.coefficients[0] = 1
		return
	}

	denominator := float64(w.size)
	if w.symmetric {
		denominator = float64(w.size - 1)
	}

	switch w.kind {
	case Hann:
		for i := range w.size {
			w.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
		}
	case Kaiser:
		i0Beta := BesselI0(w.beta)
		for i := range w.size {
			arg := 2.0*float64(i)/denominator - 1.0
			w.coefficients[i] = BesselI0(w.beta*math.Sqrt(math.Max(0, 1-arg*arg))) / i0Beta
		}
	}
}

// BesselI0 computes the zero-order modified Bessel function of the first kind
// by series expansion.
func BesselI0(x float64) float64 {
	sum := 1.0
	term := 1.0

	for i := 1; i < 50; i++ {
		term *= (x / (2.0 * float64(i))) * (x / (2.0 * float64(i)))
		sum += term
		if term < 1e-12*sum {
			break
		}
	}

	return sum
}

// ApplyInPlace applies the window to a signal in-place
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range w.size {
		signal[i] *= w.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}
