// Package temporal measures time-domain levels and dynamics of a mono buffer.
package temporal

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DynamicsFrameSize and DynamicsHopSize frame the dynamic range measure.
	DynamicsFrameSize = 1024
	DynamicsHopSize   = 512

	// DynamicRangeLow and DynamicRangeHigh are the frame-RMS percentiles
	// whose ratio is the dynamic range.
	DynamicRangeLow  = 0.10
	DynamicRangeHigh = 0.95

	// SilenceThreshold is the frame RMS (-60 dBFS) below which a frame
	// counts as silent.
	SilenceThreshold = 1e-3

	// levelFloor bounds dBFS values at -100 dB.
	levelFloor = 1e-5
)

// Levels summarizes amplitude and dynamics.
type Levels struct {
	Peak           float64 `json:"peak"`
	RMS            float64 `json:"rms"`
	PeakDBFS       float64 `json:"peak_dbfs"`
	RMSDBFS        float64 `json:"rms_dbfs"`
	CrestFactor    float64 `json:"crest_factor"`
	DynamicRangeDB float64 `json:"dynamic_range_db"`
	SilenceRatio   float64 `json:"silence_ratio"`
}

// Measure computes Levels for signal sampled at sampleRate.
func Measure(signal []float64, sampleRate int) Levels {
	if len(signal) == 0 {
		return Levels{PeakDBFS: ToDBFS(0), RMSDBFS: ToDBFS(0)}
	}

	l := Levels{
		Peak: peakOf(signal),
		RMS:  math.Sqrt(floats.Dot(signal, signal) / float64(len(signal))),
	}
	l.PeakDBFS = ToDBFS(l.Peak)
	l.RMSDBFS = ToDBFS(l.RMS)
	l.CrestFactor = CrestFactor(signal)
	l.DynamicRangeDB = DynamicRange(signal, DynamicRangeLow, DynamicRangeHigh)
	l.SilenceRatio = SilenceRatio(signal, sampleRate, SilenceThreshold)
	return l
}

// ToDBFS converts a linear amplitude to dB full scale, floored at -100 dB.
func ToDBFS(amplitude float64) float64 {
	return 20 * math.Log10(math.Max(amplitude, levelFloor))
}

// CrestFactor is the peak-to-RMS ratio; 0 for silence.
func CrestFactor(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	rms := math.Sqrt(floats.Dot(signal, signal) / float64(len(signal)))
	if rms == 0 {
		return 0
	}
	return peakOf(signal) / rms
}

// DynamicRange is the dB ratio between the high and low percentiles of the
// frame RMS envelope.
func DynamicRange(signal []float64, low, high float64) float64 {
	rms := ComputeRMS(signal, DynamicsFrameSize, DynamicsHopSize)
	if len(rms) == 0 {
		return 0
	}
	slices.Sort(rms)

	hi := stat.Quantile(high, stat.Empirical, rms, nil)
	if hi <= 0 {
		return 0
	}
	lo := math.Max(stat.Quantile(low, stat.Empirical, rms, nil), levelFloor)
	return 20 * math.Log10(hi/lo)
}

// SilenceRatio is the fraction of 25 ms frames (50% overlap) whose RMS falls
// below threshold.
func SilenceRatio(signal []float64, sampleRate int, threshold float64) float64 {
	frameSize := max(int(0.025*float64(sampleRate)), 1)
	hopSize := max(frameSize/2, 1)

	energies := ComputeRMS(signal, frameSize, hopSize)
	if len(energies) == 0 {
		return 0
	}

	silent := 0
	for _, e := range energies {
		if e < threshold {
			silent++
		}
	}
	return float64(silent) / float64(len(energies))
}
