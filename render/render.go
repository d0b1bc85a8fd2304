// Package render draws the waveform, frequency domain and spectrogram views
// as PNG images with gonum/plot.
package render

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/RyanBlaney/sonido-spectra/algorithms/spectral"
	"github.com/RyanBlaney/sonido-spectra/analyzer"
	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

// Default image size in points.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// colorBarWidth is the strip on the right of the spectrogram holding the dB
// scale.
const colorBarWidth = vg.Length(80)

// View names.
const (
	ViewWaveform    = "waveform"
	ViewFrequency   = "frequency"
	ViewSpectrogram = "spectrogram"
)

// Renderer draws plots of a fixed size.
type Renderer struct {
	width  vg.Length
	height vg.Length
	logger logging.Logger
}

// NewRenderer creates a renderer for width x height point images.
// Non-positive sizes fall back to the defaults.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{
		width:  vg.Points(float64(width)),
		height: vg.Points(float64(height)),
		logger: logging.WithFields(logging.Fields{"component": "renderer"}),
	}
}

// Waveform plots amplitude against time i/sr.
func (r *Renderer) Waveform(w io.Writer, audio *transcode.AudioData) error {
	if audio == nil || len(audio.PCM) == 0 || audio.SampleRate <= 0 {
		return fmt.Errorf("%w: nothing to plot", transcode.ErrInvalidAudio)
	}

	p := newPlot("Waveform", "Time (s)", "Amplitude")

	line, err := plotter.NewLine(envelope(audio.PCM, audio.SampleRate, r.columns()))
	if err != nil {
		return fmt.Errorf("failed to build waveform line: %w", err)
	}
	p.Add(line)

	return r.encode(w, ViewWaveform, p.Draw)
}

// FrequencyDomain plots FFT magnitude against frequency, negative
// frequencies included, in ascending frequency order.
func (r *Renderer) FrequencyDomain(w io.Writer, spec *spectral.Spectrum) error {
	if spec == nil || len(spec.Frequencies) == 0 {
		return fmt.Errorf("empty spectrum")
	}

	p := newPlot("Frequency Domain (Fourier Transform)", "Frequency (Hz)", "Magnitude")

	pts := make(plotter.XYs, len(spec.Frequencies))
	for i, f := range spec.Frequencies {
		pts[i].X = f
		pts[i].Y = spec.Magnitudes[i]
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build spectrum line: %w", err)
	}
	p.Add(line)

	return r.encode(w, ViewFrequency, p.Draw)
}

// Spectrogram draws the dB spectrogram as a heat map with a logarithmic
// frequency axis and a dB color bar beside it. The DC row has no place on a
// log axis and is omitted.
func (r *Renderer) Spectrogram(w io.Writer, sg *analyzer.Spectrogram) error {
	if sg == nil || len(sg.DB) == 0 || len(sg.Frequencies) < 3 {
		return fmt.Errorf("spectrogram too small to plot")
	}

	p := newPlot("Spectrogram", "Time (s)", "Frequency (Hz)")
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	cm := dbColorMap(analyzer.SpectrogramTopDB)
	grid := newSpectrogramGrid(sg, r.columns(), r.rows())
	hm := plotter.NewHeatMap(grid, cm.Palette(paletteSize))
	hm.Min, hm.Max = cm.Min(), cm.Max()
	p.Add(hm)

	bar := plot.New()
	bar.Title.Text = "dB"
	bar.HideX()
	bar.Y.Padding = 0
	bar.Y.Tick.Marker = dbTicks{}
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true, Colors: paletteSize})

	return r.encode(w, ViewSpectrogram, func(dc draw.Canvas) {
		width := dc.Max.X - dc.Min.X
		p.Draw(draw.Crop(dc, 0, -colorBarWidth, 0, 0))
		bar.Draw(draw.Crop(dc, width-colorBarWidth, 0, 0, 0))
	})
}

// dbTicks labels the color bar in decibels.
type dbTicks struct{}

func (dbTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i, t := range ticks {
		if t.Label != "" {
			ticks[i].Label = fmt.Sprintf("%+2.0f dB", t.Value)
		}
	}
	return ticks
}

// Render dispatches on a view name; the spectrum and spectrogram are
// computed with a under ctx.
func (r *Renderer) Render(ctx context.Context, w io.Writer, view string, a *analyzer.Analyzer, audio *transcode.AudioData) error {
	switch view {
	case ViewWaveform:
		return r.Waveform(w, audio)
	case ViewFrequency:
		spec, err := a.Spectrum(ctx, audio)
		if err != nil {
			return err
		}
		return r.FrequencyDomain(w, spec)
	case ViewSpectrogram:
		sg, err := a.Spectrogram(ctx, audio)
		if err != nil {
			return err
		}
		return r.Spectrogram(w, sg)
	default:
		return fmt.Errorf("%w: unknown view %q", analyzer.ErrInvalidParameter, view)
	}
}

// Views lists the supported view names.
func Views() []string {
	return []string{ViewWaveform, ViewFrequency, ViewSpectrogram}
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

// encode runs drawFn on a fresh canvas and writes it as PNG.
func (r *Renderer) encode(w io.Writer, view string, drawFn func(draw.Canvas)) error {
	img := vgimg.New(r.width, r.height)
	drawFn(draw.New(img))

	n, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	if err != nil {
		return fmt.Errorf("failed to encode %s plot: %w", view, err)
	}

	r.logger.Debug("Plot rendered", logging.Fields{
		"view":  view,
		"bytes": n,
	})
	return nil
}

// columns is the horizontal data resolution worth drawing.
func (r *Renderer) columns() int {
	return max(int(r.width.Points()), 1)
}

func (r *Renderer) rows() int {
	return max(int(r.height.Points()), 1)
}
