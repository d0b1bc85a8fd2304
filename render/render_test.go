package render

import (
	"bytes"
	"context"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-spectra/analyzer"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

func testAudio(t *testing.T) *transcode.AudioData {
	t.Helper()
	const sr = 8000
	pcm := make([]float64, sr)
	for i := range pcm {
		pcm[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/sr)
	}
	audio, err := transcode.NewAudioData(pcm, sr)
	require.NoError(t, err)
	return audio
}

func TestRenderViewsProducePNG(t *testing.T) {
	r := NewRenderer(320, 240)
	a := analyzer.New(nil)
	audio := testAudio(t)

	for _, view := range Views() {
		var buf bytes.Buffer
		require.NoError(t, r.Render(context.Background(), &buf, view, a, audio), view)

		img, err := png.Decode(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err, view)
		assert.Positive(t, img.Bounds().Dx(), view)
		assert.Positive(t, img.Bounds().Dy(), view)
	}
}

func TestRenderUnknownView(t *testing.T) {
	var buf bytes.Buffer
	err := NewRenderer(0, 0).Render(context.Background(), &buf, "histogram", analyzer.New(nil), testAudio(t))
	assert.ErrorIs(t, err, analyzer.ErrInvalidParameter)
	assert.Zero(t, buf.Len())
}

func TestSpectrogramHasColorBar(t *testing.T) {
	const width = 320
	sg, err := analyzer.New(nil).Spectrogram(context.Background(), testAudio(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(width, 240).Spectrogram(&buf, sg))
	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	// the color bar strip holds saturated palette colors; axes and labels
	// are grey
	b := img.Bounds()
	stripStart := b.Max.X - int(float64(b.Dx())*float64(colorBarWidth)/width)
	colored := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := stripStart; x < b.Max.X; x++ {
			r, _, bl, _ := img.At(x, y).RGBA()
			if r > bl+0x3000 {
				colored++
			}
		}
	}
	assert.Positive(t, colored)
}

func TestDBTicksLabelDecibels(t *testing.T) {
	labelled := 0
	for _, tick := range (dbTicks{}).Ticks(-80, 0) {
		if tick.Label == "" {
			continue
		}
		labelled++
		assert.Contains(t, tick.Label, " dB")
	}
	assert.Positive(t, labelled)

	cm := dbColorMap(analyzer.SpectrogramTopDB)
	assert.Equal(t, -80.0, cm.Min())
	assert.Equal(t, 0.0, cm.Max())
}

func TestRenderStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := NewRenderer(0, 0).Render(ctx, &buf, ViewSpectrogram, analyzer.New(nil), testAudio(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestWaveformRejectsEmptyAudio(t *testing.T) {
	var buf bytes.Buffer
	err := NewRenderer(0, 0).Waveform(&buf, &transcode.AudioData{SampleRate: 8000})
	assert.ErrorIs(t, err, transcode.ErrInvalidAudio)
}

func TestEnvelope(t *testing.T) {
	short := envelope([]float64{0, 1, -1}, 2, 10)
	require.Len(t, short, 3)
	assert.Equal(t, 0.5, short[1].X)

	pcm := make([]float64, 1000)
	pcm[10] = 1
	pcm[20] = -1
	pts := envelope(pcm, 100, 10)
	require.Len(t, pts, 20)
	// first bucket covers samples 0..99: min at 20, max at 10, kept in time order
	assert.Equal(t, 1.0, pts[0].Y)
	assert.Equal(t, -1.0, pts[1].Y)
	for i := 1; i < len(pts); i++ {
		assert.LessOrEqual(t, pts[i-1].X, pts[i].X)
	}
}

func TestLinearGroups(t *testing.T) {
	assert.Equal(t, [][]int{{0, 1}, {2, 3, 4}}, linearGroups(5, 2))
	assert.Equal(t, [][]int{{0}, {1}}, linearGroups(2, 10))
}

func TestLogBands(t *testing.T) {
	freqs := make([]float64, 1025)
	for i := range freqs {
		freqs[i] = float64(i) * 8000 / 2048
	}

	idx, centers := logBands(freqs, 64)
	require.Len(t, idx, 64)
	require.Len(t, centers, 64)

	seen := map[int]bool{}
	for b := range idx {
		require.NotEmpty(t, idx[b])
		if b > 0 {
			assert.Greater(t, centers[b], centers[b-1])
		}
		for _, k := range idx[b] {
			assert.NotZero(t, k, "DC bin must be excluded")
			seen[k] = true
		}
	}
	assert.True(t, seen[1])
	assert.True(t, seen[1024])

	small, c := logBands(freqs[:5], 64)
	assert.Equal(t, [][]int{{1}, {2}, {3}, {4}}, small)
	assert.Equal(t, []float64{freqs[1], freqs[2], freqs[3], freqs[4]}, c)
}
