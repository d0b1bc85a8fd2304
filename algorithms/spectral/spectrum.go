package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
)

// DefaultFourierSize is the number of FFT points used for the frequency
// domain view.
const DefaultFourierSize = 2048

// Spectrum is the two-sided magnitude spectrum of a single FFT.
type Spectrum struct {
	Frequencies []float64 `json:"frequencies"` // fftfreq order: 0, +f..., -f...
	Magnitudes  []float64 `json:"magnitudes"`
	NFFT        int       `json:"n_fft"`
	SampleRate  int       `json:"sample_rate"`
	BinWidth    float64   `json:"bin_width"`
}

// ComputeFourier takes an nFFT-point FFT of signal, truncating or
// zero-padding as needed. No window or normalization is applied.
func ComputeFourier(t Transformer, signal []float64, sampleRate, nFFT int) (*Spectrum, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}
	if nFFT <= 0 {
		nFFT = DefaultFourierSize
	}

	frame := make([]float64, nFFT)
	copy(frame, signal)

	coeffs := t.Compute(frame)
	magnitudes := make([]float64, nFFT)
	for i, c := range coeffs {
		magnitudes[i] = cmplx.Abs(c)
	}

	return &Spectrum{
		Frequencies: FFTFreq(nFFT, sampleRate),
		Magnitudes:  magnitudes,
		NFFT:        nFFT,
		SampleRate:  sampleRate,
		BinWidth:    float64(sampleRate) / float64(nFFT),
	}, nil
}

// FFTFreq returns the sample frequencies of an n-point DFT in standard order:
// [0, 1, ..., ceil(n/2)-1, -floor(n/2), ..., -1] * sampleRate/n.
func FFTFreq(n, sampleRate int) []float64 {
	freqs := make([]float64, n)
	step := float64(sampleRate) / float64(n)
	positive := (n-1)/2 + 1
	for i := range positive {
		freqs[i] = float64(i) * step
	}
	for i := positive; i < n; i++ {
		freqs[i] = float64(i-n) * step
	}
	return freqs
}

// PeakFrequency returns the non-negative frequency with the largest magnitude.
func (s *Spectrum) PeakFrequency() float64 {
	best, bestMag := 0.0, -1.0
	for i, f := range s.Frequencies {
		if f < 0 {
			continue
		}
		if s.Magnitudes[i] > bestMag {
			best, bestMag = f, s.Magnitudes[i]
		}
	}
	return best
}

// OneSided returns the non-negative half of the spectrum in ascending order.
func (s *Spectrum) OneSided() (freqs, mags []float64) {
	for i, f := range s.Frequencies {
		if f >= 0 {
			freqs = append(freqs, f)
			mags = append(mags, s.Magnitudes[i])
		}
	}
	return freqs, mags
}

// AmplitudeToDB converts a magnitude matrix to decibels relative to its
// maximum, floored at amin and clipped to topDB below the peak. topDB <= 0
// disables the clip.
func AmplitudeToDB(magnitude [][]float64, amin, topDB float64) [][]float64 {
	if amin <= 0 {
		amin = 1e-5
	}

	ref := 0.0
	for _, row := range magnitude {
		for _, v := range row {
			ref = math.Max(ref, math.Abs(v))
		}
	}
	refDB := 20 * math.Log10(math.Max(amin, ref))

	peak := math.Inf(-1)
	db := make([][]float64, len(magnitude))
	for t, row := range magnitude {
		db[t] = make([]float64, len(row))
		for f, v := range row {
			db[t][f] = 20*math.Log10(math.Max(amin, math.Abs(v))) - refDB
			peak = math.Max(peak, db[t][f])
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for t := range db {
			for f := range db[t] {
				db[t][f] = math.Max(db[t][f], floor)
			}
		}
	}

	return db
}
