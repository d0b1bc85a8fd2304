package filters

import (
	"math"
	"math/cmplx"
)

// Biquad is a single second-order section with coefficients normalized so
// that a0 == 1. First-order sections leave B2 and A2 at zero.
//
// The difference equation is:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
type Biquad struct {
	B0, B1, B2 float64 // Numerator coefficients
	A1, A2     float64 // Denominator coefficients (a0 == 1)
}

// SOS is a cascade of second-order sections applied in order.
type SOS []Biquad

// sectionState is the transposed direct form II delay line of one section.
type sectionState struct {
	z0, z1 float64
}

// process filters a single sample through the section using transposed
// direct form II, which keeps the two state variables well scaled.
func (b Biquad) process(x float64, st *sectionState) float64 {
	y := b.B0*x + st.z0
	st.z0 = b.B1*x - b.A1*y + st.z1
	st.z1 = b.B2*x - b.A2*y
	return y
}

// DCGain returns H(z) at z = 1.
func (b Biquad) DCGain() float64 {
	den := 1 + b.A1 + b.A2
	if den == 0 {
		return math.Inf(1)
	}
	return (b.B0 + b.B1 + b.B2) / den
}

// steadyState returns the delay line a section settles into under a unit
// step input.
func (b Biquad) steadyState() sectionState {
	g := b.DCGain()
	return sectionState{
		z0: g - b.B0,
		z1: b.B2 - b.A2*g,
	}
}

// Response computes the complex response at frequency (Hz).
//
// H(e^jw) = (b0 + b1*e^-jw + b2*e^-j2w) / (1 + a1*e^-jw + a2*e^-j2w)
func (b Biquad) Response(frequency float64, sampleRate int) complex128 {
	w := 2.0 * math.Pi * frequency / float64(sampleRate)
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1

	num := complex(b.B0, 0) + complex(b.B1, 0)*z1 + complex(b.B2, 0)*z2
	den := 1 + complex(b.A1, 0)*z1 + complex(b.A2, 0)*z2
	return num / den
}

// Response is the product of the section responses.
func (s SOS) Response(frequency float64, sampleRate int) complex128 {
	h := complex(1, 0)
	for _, section := range s {
		h *= section.Response(frequency, sampleRate)
	}
	return h
}

// Magnitude returns |H| at frequency for a single pass of the cascade.
// Zero-phase (forward-backward) filtering squares it.
func (s SOS) Magnitude(frequency float64, sampleRate int) float64 {
	return cmplx.Abs(s.Response(frequency, sampleRate))
}

// Order returns the filter order of the cascade.
func (s SOS) Order() int {
	order := 0
	for _, section := range s {
		if section.A2 != 0 || section.B2 != 0 {
			order += 2
		} else {
			order++
		}
	}
	return order
}

func (s SOS) filterWithState(input []float64, state []sectionState) []float64 {
	output := make([]float64, len(input))
	copy(output, input)
	for i, section := range s {
		st := &state[i]
		for n, x := range output {
			output[n] = section.process(x, st)
		}
	}
	return output
}
