package filters

// PreEmphasis implements a first-order pre-emphasis filter, boosting high
// frequencies relative to low ones.
//
// The filter implements the transfer function:
// H(z) = 1 - α*z^-1
//
// With the difference equation:
// y[n] = x[n] - α*x[n-1]
//
// References:
//   - L.R. Rabiner, R.W. Schafer, "Digital Processing of Speech Signals",
//     Prentice-Hall, 1978, Chapter 4
//   - ITU-T Recommendation G.191, "Software tools for speech and audio
//     coding standardization"
type PreEmphasis struct {
	coefficient float64 // Pre-emphasis coefficient α
	lastSample  float64 // Previous input sample x[n-1]
}

// NewPreEmphasis creates a pre-emphasis filter with the given coefficient.
// The coefficient is not range checked.
func NewPreEmphasis(coefficient float64) *PreEmphasis {
	return &PreEmphasis{coefficient: coefficient}
}

// Process applies pre-emphasis filtering to a single sample.
func (pe *PreEmphasis) Process(input float64) float64 {
	output := input - pe.coefficient*pe.lastSample
	pe.lastSample = input
	return output
}

// ProcessBuffer applies pre-emphasis to an entire buffer of samples,
// continuing from the current filter state.
func (pe *PreEmphasis) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = pe.Process(sample)
	}
	return output
}

// ProcessBufferExtrapolated filters a complete, self-contained buffer. The
// missing x[-1] is linearly extrapolated as 2*x[0] - x[1], so the first
// output is y[0] = x[0] - α*(2*x[0] - x[1]). A single sample is its own
// predecessor.
func (pe *PreEmphasis) ProcessBufferExtrapolated(input []float64) []float64 {
	switch len(input) {
	case 0:
		return []float64{}
	case 1:
		pe.lastSample = input[0]
	default:
		pe.lastSample = 2*input[0] - input[1]
	}
	return pe.ProcessBuffer(input)
}
