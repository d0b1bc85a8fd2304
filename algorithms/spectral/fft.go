package spectral

import (
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Transformer is a discrete Fourier transform implementation. Compute returns
// the full, two-sided spectrum of a real signal; ComputeInverse is normalized
// so that ComputeInverse(Compute(x)) == x.
type Transformer interface {
	Name() string
	Compute(x []float64) []complex128
	ComputeInverse(x []complex128) []complex128
}

// FFT provides Fast Fourier Transform functionality using mjibson/go-dsp
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

func (f *FFT) Name() string { return "godsp" }

// Compute computes the FFT of a real signal. go-dsp handles non power-of-2
// sizes with Bluestein's algorithm.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeInverse computes inverse FFT
func (f *FFT) ComputeInverse(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.IFFT(x)
}

// FourierFFT is the gonum dsp/fourier implementation of Transformer. Plans
// are not safe for concurrent use, so one is built per call.
type FourierFFT struct{}

// NewFourierFFT creates a gonum-backed transformer
func NewFourierFFT() *FourierFFT {
	return &FourierFFT{}
}

func (f *FourierFFT) Name() string { return "fourier" }

// Compute returns the full spectrum by mirroring gonum's half spectrum.
func (f *FourierFFT) Compute(x []float64) []complex128 {
	n := len(x)
	if n == 0 {
		return []complex128{}
	}

	half := fourier.NewFFT(n).Coefficients(nil, x)
	return mirrorHalfSpectrum(half, n)
}

// ComputeInverse runs the complex inverse transform and scales by 1/n.
func (f *FourierFFT) ComputeInverse(x []complex128) []complex128 {
	n := len(x)
	if n == 0 {
		return []complex128{}
	}

	seq := fourier.NewCmplxFFT(n).Sequence(nil, x)
	scale := complex(1/float64(n), 0)
	for i := range seq {
		seq[i] *= scale
	}
	return seq
}

// NewTransformer returns the transformer registered under name. Unknown
// names fall back to go-dsp.
func NewTransformer(name string) Transformer {
	switch name {
	case "fourier", "gonum":
		return NewFourierFFT()
	default:
		return NewFFT()
	}
}

// mirrorHalfSpectrum rebuilds a length-n Hermitian spectrum from its
// non-negative half (n/2+1 bins).
func mirrorHalfSpectrum(half []complex128, n int) []complex128 {
	full := make([]complex128, n)
	copy(full, half)
	for k := 1; k < (n+1)/2; k++ {
		c := half[k]
		full[n-k] = complex(real(c), -imag(c))
	}
	return full
}

// InverseReal computes the inverse transform and keeps the real part.
func InverseReal(t Transformer, x []complex128) []float64 {
	result := t.ComputeInverse(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}
	return realResult
}
