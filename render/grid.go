package render

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"

	"github.com/RyanBlaney/sonido-spectra/analyzer"
)

// paletteSize is the number of colors in the spectrogram palette.
const paletteSize = 256

// envelope reduces a signal to at most 2*buckets points, the minimum and
// maximum of each bucket, so long files plot with the same outline as the
// full-resolution line.
func envelope(pcm []float64, sampleRate, buckets int) plotter.XYs {
	if len(pcm) <= 2*buckets {
		pts := make(plotter.XYs, len(pcm))
		for i, v := range pcm {
			pts[i].X = float64(i) / float64(sampleRate)
			pts[i].Y = v
		}
		return pts
	}

	pts := make(plotter.XYs, 0, 2*buckets)
	size := float64(len(pcm)) / float64(buckets)
	for b := range buckets {
		start := int(float64(b) * size)
		end := min(int(float64(b+1)*size), len(pcm))
		chunk := pcm[start:end]

		lo, hi := floats.MinIdx(chunk)+start, floats.MaxIdx(chunk)+start
		if lo > hi {
			lo, hi = hi, lo
		}
		pts = append(pts,
			plotter.XY{X: float64(lo) / float64(sampleRate), Y: pcm[lo]},
			plotter.XY{X: float64(hi) / float64(sampleRate), Y: pcm[hi]},
		)
	}
	return pts
}

// spectrogramGrid implements plotter.GridXYZ over a pooled dB spectrogram:
// time frames are max-pooled into at most maxCols columns and the non-DC
// bins into at most maxRows log-spaced bands.
type spectrogramGrid struct {
	x []float64
	y []float64
	z [][]float64 // [column][row]
}

func newSpectrogramGrid(sg *analyzer.Spectrogram, maxCols, maxRows int) *spectrogramGrid {
	colIdx := linearGroups(len(sg.DB), maxCols)
	rowIdx, centers := logBands(sg.Frequencies, maxRows)

	g := &spectrogramGrid{
		x: make([]float64, len(colIdx)),
		y: centers,
		z: make([][]float64, len(colIdx)),
	}

	for c, frames := range colIdx {
		g.x[c] = sg.Times[frames[0]]
		g.z[c] = make([]float64, len(rowIdx))
		for r, bins := range rowIdx {
			v := math.Inf(-1)
			for _, t := range frames {
				for _, k := range bins {
					v = math.Max(v, sg.DB[t][k])
				}
			}
			g.z[c][r] = v
		}
	}
	return g
}

func (g *spectrogramGrid) Dims() (c, r int)   { return len(g.x), len(g.y) }
func (g *spectrogramGrid) Z(c, r int) float64 { return g.z[c][r] }
func (g *spectrogramGrid) X(c int) float64    { return g.x[c] }
func (g *spectrogramGrid) Y(r int) float64    { return g.y[r] }

// linearGroups splits [0, n) into at most groups contiguous, non-empty runs.
func linearGroups(n, groups int) [][]int {
	groups = max(min(groups, n), 1)
	out := make([][]int, 0, groups)
	for g := range groups {
		start, end := g*n/groups, (g+1)*n/groups
		idx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			idx = append(idx, i)
		}
		out = append(out, idx)
	}
	return out
}

// logBands groups bins 1..len(freqs)-1 into at most bands log-spaced bands
// and returns the member bins and geometric center of each. Bands too narrow
// to contain a bin take the nearest one.
func logBands(freqs []float64, bands int) ([][]int, []float64) {
	first, last := 1, len(freqs)-1
	bands = max(min(bands, last-first+1), 1)

	if bands == last-first+1 {
		idx := make([][]int, bands)
		centers := make([]float64, bands)
		for b := range bands {
			idx[b] = []int{first + b}
			centers[b] = freqs[first+b]
		}
		return idx, centers
	}

	lo, hi := math.Log(freqs[first]), math.Log(freqs[last])
	step := (hi - lo) / float64(bands)

	idx := make([][]int, 0, bands)
	centers := make([]float64, 0, bands)
	k := first
	for b := range bands {
		lower := math.Exp(lo + float64(b)*step)
		upper := math.Exp(lo + float64(b+1)*step)
		center := math.Sqrt(lower * upper)

		var members []int
		for k <= last && (freqs[k] < upper || b == bands-1) {
			if freqs[k] >= lower || b == 0 {
				members = append(members, k)
			}
			k++
		}
		if len(members) == 0 {
			members = []int{nearestBin(freqs, center, first, last)}
		}

		idx = append(idx, members)
		centers = append(centers, center)
	}
	return idx, centers
}

func nearestBin(freqs []float64, f float64, first, last int) int {
	best := first
	for k := first; k <= last; k++ {
		if math.Abs(freqs[k]-f) < math.Abs(freqs[best]-f) {
			best = k
		}
	}
	return best
}

// dbColorMap maps [-topDB, 0] dB from dark to bright. The heat map and its
// color bar share it.
func dbColorMap(topDB float64) palette.ColorMap {
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(-topDB)
	cm.SetMax(0)
	return cm
}
