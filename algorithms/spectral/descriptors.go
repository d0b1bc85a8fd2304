package spectral

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultRolloffThreshold is the fraction of spectral energy below the
// rolloff frequency.
const DefaultRolloffThreshold = 0.85

// Descriptors summarizes the shape of a one-sided magnitude spectrum.
type Descriptors struct {
	Centroid  float64 `json:"centroid_hz"`
	Bandwidth float64 `json:"bandwidth_hz"`
	Rolloff   float64 `json:"rolloff_hz"`
	Flatness  float64 `json:"flatness"`
}

// Describe computes centroid, bandwidth, rolloff and flatness of a one-sided
// magnitude spectrum sampled at freqs.
func Describe(freqs, mags []float64) Descriptors {
	if len(mags) == 0 || len(freqs) != len(mags) {
		return Descriptors{}
	}
	return Descriptors{
		Centroid:  Centroid(freqs, mags),
		Bandwidth: Bandwidth(freqs, mags),
		Rolloff:   Rolloff(freqs, mags, DefaultRolloffThreshold),
		Flatness:  Flatness(mags),
	}
}

// Centroid is the magnitude-weighted mean frequency.
func Centroid(freqs, mags []float64) float64 {
	if floats.Sum(mags) == 0 {
		return 0
	}
	return stat.Mean(freqs, mags)
}

// Bandwidth is the magnitude-weighted standard deviation around the centroid.
func Bandwidth(freqs, mags []float64) float64 {
	total := floats.Sum(mags)
	if total == 0 {
		return 0
	}
	centroid := stat.Mean(freqs, mags)

	variance := 0.0
	for i, f := range freqs {
		d := f - centroid
		variance += mags[i] * d * d
	}
	return math.Sqrt(variance / total)
}

// Rolloff returns the lowest frequency below which threshold of the spectral
// energy lies.
func Rolloff(freqs, mags []float64, threshold float64) float64 {
	if len(mags) == 0 {
		return 0
	}
	energy := make([]float64, len(mags))
	floats.MulTo(energy, mags, mags)
	floats.CumSum(energy, energy)

	total := energy[len(energy)-1]
	if total == 0 {
		return 0
	}
	target := threshold * total
	for i, e := range energy {
		if e >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

// Flatness is the ratio of geometric to arithmetic mean of the power
// spectrum; 1 for white noise, near 0 for a pure tone.
func Flatness(mags []float64) float64 {
	if len(mags) == 0 {
		return 0
	}
	const floor = 1e-10

	power := make([]float64, len(mags))
	for i, m := range mags {
		power[i] = math.Max(m*m, floor)
	}
	arith := stat.Mean(power, nil)
	if arith <= floor {
		return 0
	}
	return stat.GeometricMean(power, nil) / arith
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs that change
// sign, in [0, 1].
func ZeroCrossingRate(signal []float64) float64 {
	if len(signal) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(signal); i++ {
		if (signal[i-1] >= 0) != (signal[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(signal)-1)
}
