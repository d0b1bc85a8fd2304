package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func rms(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestButterworthDesignResponse(t *testing.T) {
	sos, err := DesignButterworthLowPass(DefaultButterworthOrder, 1000, 8000)
	require.NoError(t, err)

	assert.Len(t, sos, 3)
	assert.Equal(t, 5, sos.Order())
	assert.Equal(t, 18, sos.PadLength())

	assert.InDelta(t, 1.0, sos.Magnitude(0, 8000), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, sos.Magnitude(1000, 8000), 1e-6)
	assert.InDelta(t, 0.0, sos.Magnitude(4000, 8000), 1e-9)
	assert.Less(t, sos.Magnitude(3000, 8000), 0.01)
}

func TestButterworthRejectsBadCutoff(t *testing.T) {
	for _, cutoff := range []float64{0, -10, 4000, 10000, math.NaN()} {
		_, err := DesignButterworthLowPass(5, cutoff, 8000)
		assert.ErrorIs(t, err, ErrInvalidCutoff, "cutoff %v", cutoff)
	}

	_, err := DesignButterworthLowPass(0, 1000, 8000)
	assert.Error(t, err)
}

func TestFiltFiltAttenuatesAboveCutoff(t *testing.T) {
	const sampleRate = 8000
	sos, err := DesignButterworthLowPass(5, 1000, sampleRate)
	require.NoError(t, err)

	low := sine(200, sampleRate, sampleRate)
	high := sine(3000, sampleRate, sampleRate)

	lowOut := sos.FiltFilt(low)
	highOut := sos.FiltFilt(high)
	require.Len(t, lowOut, len(low))
	require.Len(t, highOut, len(high))

	mid := func(x []float64) []float64 { return x[1000 : len(x)-1000] }
	assert.InDelta(t, 1.0, rms(mid(lowOut))/rms(mid(low)), 0.02)
	assert.Less(t, rms(mid(highOut))/rms(mid(high)), 0.001)
}

func TestFiltFiltKeepsConstantSignal(t *testing.T) {
	sos, err := DesignButterworthLowPass(5, 500, 16000)
	require.NoError(t, err)

	in := make([]float64, 200)
	for i := range in {
		in[i] = 0.25
	}
	assert.InDeltaSlice(t, in, sos.FiltFilt(in), 1e-9)
}

func TestFiltFiltShortInput(t *testing.T) {
	sos, err := DesignButterworthLowPass(5, 500, 16000)
	require.NoError(t, err)

	assert.Empty(t, sos.FiltFilt(nil))
	assert.Len(t, sos.FiltFilt([]float64{0.5}), 1)
	assert.Len(t, sos.FiltFilt([]float64{0.5, -0.5, 0.1}), 3)
}

func TestPreEmphasis(t *testing.T) {
	pe := NewPreEmphasis(0.5)
	assert.Equal(t, []float64{1, 1.5, 2}, pe.ProcessBuffer([]float64{1, 2, 3}))

	// x[-1] = 2*2 - 3 = 1
	assert.Equal(t, []float64{1.5, 2, 3.5}, NewPreEmphasis(0.5).ProcessBufferExtrapolated([]float64{2, 3, 5}))
	assert.Equal(t, []float64{0.5}, NewPreEmphasis(0.5).ProcessBufferExtrapolated([]float64{1}))
	assert.Empty(t, pe.ProcessBufferExtrapolated(nil))
}

func TestPreEmphasisFirstSampleExtrapolates(t *testing.T) {
	x := []float64{2, 3, 5, -1}
	for _, coef := range []float64{0, 0.1, 0.5, 0.9, 1} {
		y := NewPreEmphasis(coef).ProcessBufferExtrapolated(x)
		assert.InDelta(t, x[0]-coef*(2*x[0]-x[1]), y[0], 1e-12, "coef %v", coef)
		for n := 1; n < len(x); n++ {
			assert.InDelta(t, x[n]-coef*x[n-1], y[n], 1e-12, "coef %v sample %d", coef, n)
		}
	}

	// the first sample depends on the coefficient, unlike 3*x[0] - x[1]
	a := NewPreEmphasis(0.1).ProcessBufferExtrapolated(x)
	b := NewPreEmphasis(0.9).ProcessBufferExtrapolated(x)
	assert.NotEqual(t, a[0], b[0])
	assert.InDelta(t, 1.1, b[0], 1e-12)
}
