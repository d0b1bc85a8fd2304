package filters

// PadLength returns the odd-extension length used by FiltFilt: three times
// the number of coefficients of the equivalent single transfer function.
func (s SOS) PadLength() int {
	return 3 * (s.Order() + 1)
}

// FiltFilt applies the cascade forward and then backward, giving zero phase
// distortion and a magnitude response of |H|^2.
//
// Edge transients are suppressed the usual way:
//   - the input is extended at both ends by an odd (point-symmetric)
//     reflection of PadLength samples, clipped to len(input)-1;
//   - each pass starts from the steady-state delay line scaled by the first
//     sample it sees.
//
// Reference: F. Gustafsson, "Determining the initial states in
// forward-backward filtering", IEEE Trans. Signal Processing, 1996.
func (s SOS) FiltFilt(input []float64) []float64 {
	n := len(input)
	if n == 0 || len(s) == 0 {
		out := make([]float64, n)
		copy(out, input)
		return out
	}

	padLen := min(s.PadLength(), n-1)
	ext := oddExtend(input, padLen)

	zi := s.initialState()

	forward := s.filterWithState(ext, scaleState(zi, ext[0]))
	reverse(forward)

	backward := s.filterWithState(forward, scaleState(zi, forward[0]))
	reverse(backward)

	out := make([]float64, n)
	copy(out, backward[padLen:padLen+n])
	return out
}

// initialState is the per-section steady state for a unit step applied to
// the whole cascade; each section sees the DC gain of the ones before it.
func (s SOS) initialState() []sectionState {
	zi := make([]sectionState, len(s))
	scale := 1.0
	for i, section := range s {
		st := section.steadyState()
		zi[i] = sectionState{z0: st.z0 * scale, z1: st.z1 * scale}
		scale *= section.DCGain()
	}
	return zi
}

func scaleState(zi []sectionState, x0 float64) []sectionState {
	out := make([]sectionState, len(zi))
	for i, st := range zi {
		out[i] = sectionState{z0: st.z0 * x0, z1: st.z1 * x0}
	}
	return out
}

// oddExtend reflects padLen samples about each endpoint:
// 2*x[0] - x[padLen..1] on the left and 2*x[n-1] - x[n-2..n-1-padLen] on the
// right.
func oddExtend(x []float64, padLen int) []float64 {
	n := len(x)
	ext := make([]float64, n+2*padLen)
	for i := range padLen {
		ext[i] = 2*x[0] - x[padLen-i]
		ext[padLen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[padLen:], x)
	return ext
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
