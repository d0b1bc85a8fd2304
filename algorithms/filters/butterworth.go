package filters

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// DefaultButterworthOrder is the order used by the low-pass effect.
const DefaultButterworthOrder = 5

// ErrInvalidCutoff is returned when a cutoff is not strictly between 0 Hz
// and the Nyquist frequency.
var ErrInvalidCutoff = errors.New("cutoff must be between 0 and the Nyquist frequency")

// DesignButterworthLowPass designs a digital Butterworth low-pass filter as a
// cascade of second-order sections.
//
// The design follows the classical analog-prototype route:
//  1. Place the order-N analog prototype poles on the left half of the unit
//     circle, p_k = -exp(j*pi*m/(2N)) for m = -N+1, -N+3, ..., N-1.
//  2. Pre-warp the normalized cutoff Wn = cutoff/nyquist to the analog
//     frequency 4*tan(pi*Wn/2) and scale the poles by it.
//  3. Map each pole to the z-plane with the bilinear transform
//     z = (4 + s) / (4 - s); all N zeros land at z = -1.
//  4. Pair conjugate poles into biquads (one first-order section when N is
//     odd) and scale every section to unit gain at DC.
//
// References:
//   - A.V. Oppenheim, R.W. Schafer, "Discrete-Time Signal Processing",
//     3rd Edition, Chapter 7
//   - S. Butterworth, "On the Theory of Filter Amplifiers", 1930
func DesignButterworthLowPass(order int, cutoff float64, sampleRate int) (SOS, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order must be positive, got %d", order)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	nyquist := float64(sampleRate) / 2
	if !(cutoff > 0 && cutoff < nyquist) || math.IsNaN(cutoff) {
		return nil, fmt.Errorf("%w: %.2f Hz at %d Hz sample rate", ErrInvalidCutoff, cutoff, sampleRate)
	}

	const fs2 = 4.0 // 2 * fs with the normalized fs = 2
	warped := fs2 * math.Tan(math.Pi*(cutoff/nyquist)/2)

	sos := make(SOS, 0, (order+1)/2)

	// conjugate pairs, taking the upper-half pole of each
	for m := order - 1; m > 0; m -= 2 {
		s := -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*order))) * complex(warped, 0)
		z := (fs2 + s) / (fs2 - s)

		section := Biquad{
			B0: 1, B1: 2, B2: 1,
			A1: -2 * real(z),
			A2: real(z)*real(z) + imag(z)*imag(z),
		}
		sos = append(sos, normalizeDC(section))
	}

	if order%2 == 1 {
		s := -warped
		p := (fs2 + s) / (fs2 - s)
		sos = append(sos, normalizeDC(Biquad{B0: 1, B1: 1, A1: -p}))
	}

	return sos, nil
}

// normalizeDC scales the numerator so the section has unit gain at DC.
func normalizeDC(b Biquad) Biquad {
	g := b.DCGain()
	if g == 0 || math.IsInf(g, 0) {
		return b
	}
	b.B0 /= g
	b.B1 /= g
	b.B2 /= g
	return b
}
