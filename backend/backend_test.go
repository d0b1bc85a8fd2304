package backend

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-spectra/algorithms/filters"
	"github.com/RyanBlaney/sonido-spectra/logging"
)

func TestNewDSPSelectsTransformer(t *testing.T) {
	assert.Equal(t, "dsp/godsp", NewDSP().Name())
	assert.Equal(t, "dsp/fourier", NewDSP(WithTransformer("fourier")).Name())
	assert.Equal(t, "dsp/godsp", NewDSP(WithTransformer("unknown")).Name())
}

func TestDSPOperations(t *testing.T) {
	d := NewDSP(WithLogger(&logging.NoOpLogger{}))
	ctx := context.Background()

	const sr = 8000
	x := make([]float64, sr)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 500 * float64(i) / sr)
	}

	spec, err := d.FFT(ctx, x, sr, 2048)
	require.NoError(t, err)
	assert.InDelta(t, 500, spec.PeakFrequency(), spec.BinWidth)

	res, err := d.STFT(ctx, x, sr, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2048, res.WindowSize)
	assert.Equal(t, 512, res.HopSize)

	up, err := d.Resample(ctx, x, sr, 2*sr)
	require.NoError(t, err)
	assert.Len(t, up, 2*sr)

	same, err := d.PitchShift(ctx, x, sr, 0)
	require.NoError(t, err)
	assert.Equal(t, x, same)

	stretched, err := d.TimeStretch(ctx, x, 2)
	require.NoError(t, err)
	assert.Len(t, stretched, sr/2)

	sos, err := d.DesignLowPass(5, 1000, sr)
	require.NoError(t, err)
	filtered, err := d.ApplyFilter(ctx, sos, x)
	require.NoError(t, err)
	assert.Len(t, filtered, len(x))

	_, err = d.DesignLowPass(5, 5000, sr)
	assert.ErrorIs(t, err, filters.ErrInvalidCutoff)

	assert.Equal(t, []float64{1.5, 2, 3.5}, d.PreEmphasis([]float64{2, 3, 5}, 0.5))
}

func TestDSPOperationsHonorContext(t *testing.T) {
	d := NewDSP(WithLogger(&logging.NoOpLogger{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := make([]float64, 8000)
	_, err := d.FFT(ctx, x, 8000, 2048)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.STFT(ctx, x, 8000, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.Resample(ctx, x, 8000, 16000)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.TimeStretch(ctx, x, 2)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.PitchShift(ctx, x, 8000, 7)
	assert.ErrorIs(t, err, context.Canceled)

	sos, err := d.DesignLowPass(5, 1000, 8000)
	require.NoError(t, err)
	_, err = d.ApplyFilter(ctx, sos, x)
	assert.ErrorIs(t, err, context.Canceled)
}
