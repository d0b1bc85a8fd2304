package spectral

import (
	"context"
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/RyanBlaney/sonido-spectra/algorithms/windowing"
	"github.com/RyanBlaney/sonido-spectra/logging"
)

// Default STFT geometry, matching the spectrogram view.
const (
	DefaultWindowSize = 2048
	DefaultHopSize    = 512
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft    Transformer
	logger logging.Logger
}

// STFTResult holds the result of STFT analysis
type STFTResult struct {
	Magnitude      [][]float64    `json:"magnitude"`       // Time x Frequency magnitude matrix
	Phase          [][]float64    `json:"phase"`           // Time x Frequency phase matrix
	Complex        [][]complex128 `json:"-"`               // Raw complex spectrogram (not serialized)
	TimeFrames     int            `json:"time_frames"`     // Number of time frames
	FreqBins       int            `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int            `json:"sample_rate"`     // Sample rate
	WindowSize     int            `json:"window_size"`     // FFT window size
	HopSize        int            `json:"hop_size"`        // Hop size between frames
	Centered       bool           `json:"centered"`        // Frames centered on t*hop
	FreqResolution float64        `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64        `json:"time_resolution"` // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator. A nil transformer uses go-dsp.
func NewSTFT(t Transformer) *STFT {
	if t == nil {
		t = NewFFT()
	}
	return &STFT{
		fft:    t,
		logger: logging.WithFields(logging.Fields{"component": "stft"}),
	}
}

// Transformer returns the FFT implementation in use.
func (s *STFT) Transformer() Transformer {
	return s.fft
}

// ComputeCentered reflect-pads the signal by windowSize/2 on both sides so
// frame t is centered on sample t*hopSize, then runs ComputeWithWindow. A nil
// window means periodic Hann.
func (s *STFT) ComputeCentered(ctx context.Context, signal []float64, windowSize, hopSize, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if window == nil {
		window = windowing.NewHann(windowSize, false)
	}

	result, err := s.ComputeWithWindow(ctx, ReflectPad(signal, windowSize/2), windowSize, hopSize, sampleRate, window)
	if err != nil {
		return nil, err
	}
	result.Centered = true
	return result, nil
}

// ReflectPad mirrors pad samples onto each end of signal without repeating
// the edge sample: [3 2 | 1 2 3 4 | 3 2]. Pads longer than the signal keep
// reflecting back and forth; a single sample is repeated.
func ReflectPad(signal []float64, pad int) []float64 {
	n := len(signal)
	out := make([]float64, n+2*pad)
	copy(out[pad:], signal)
	if n == 0 || pad <= 0 {
		return out
	}
	for i := range pad {
		out[pad-1-i] = signal[reflectIndex(-1-i, n)]
		out[pad+n+i] = signal[reflectIndex(n+i, n)]
	}
	return out
}

// reflectIndex folds i into [0, n) by mirroring about the end samples.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// ComputeWithWindow computes STFT with parallel processing and custom window
// type. Workers stop picking up frames once ctx is done.
func (s *STFT) ComputeWithWindow(ctx context.Context, signal []float64, windowSize int, hopSize int, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	if len(signal) < windowSize {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}
	numFrames := (len(signal)-windowSize)/hopSize + 1

	// Calculate frequency bins (positive frequencies only)
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	phase := make([][]float64, numFrames)
	complexSpectrum := make([][]complex128, numFrames)

	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
		phase[i] = make([]float64, freqBins)
		complexSpectrum[i] = make([]complex128, freqBins)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)

	jobs := make(chan int, numFrames)
	errs := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				startIdx := frameIdx * hopSize
				copy(frameBuffer, signal[startIdx:startIdx+windowSize])

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errs <- fmt.Errorf("frame %d: %w", frameIdx, err)
						// drain remaining jobs so the producer never blocks
						for range jobs {
						}
						return
					}
				}

				fftResult := s.fft.Compute(frameBuffer)

				for i := range freqBins {
					complexSpectrum[frameIdx][i] = fftResult[i]
					magnitude[frameIdx][i] = cmplx.Abs(fftResult[i])
					phase[frameIdx][i] = cmplx.Phase(fftResult[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stft cancelled: %w", err)
	}
	if err := <-errs; err != nil {
		s.logger.Error(err, "Window application failed")
		return nil, err
	}

	s.logger.Debug("STFT computed", logging.Fields{
		"frames":      numFrames,
		"freq_bins":   freqBins,
		"window_size": windowSize,
		"hop_size":    hopSize,
		"workers":     numWorkers,
		"transformer": s.fft.Name(),
	})

	return &STFTResult{
		Magnitude:      magnitude,
		Phase:          phase,
		Complex:        complexSpectrum,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}

// FrameFrequencies returns the center frequency of each bin.
func (r *STFTResult) FrameFrequencies() []float64 {
	freqs := make([]float64, r.FreqBins)
	for i := range freqs {
		freqs[i] = float64(i) * r.FreqResolution
	}
	return freqs
}

// FrameTimes returns the time in seconds of each frame. Centered frames sit
// at t*hop; uncentered ones at the middle of their window.
func (r *STFTResult) FrameTimes() []float64 {
	times := make([]float64, r.TimeFrames)
	offset := 0.0
	if !r.Centered {
		offset = float64(r.WindowSize) / 2 / float64(r.SampleRate)
	}
	for i := range times {
		times[i] = float64(i)*r.TimeResolution + offset
	}
	return times
}

// getOptimalWorkerCount determines the number of workers based on workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	var workers int
	switch {
	case numFrames < 100:
		workers = min(numCPU/2, numFrames)
	case numFrames < 1000:
		workers = min(numCPU, 8)
	default:
		workers = numCPU
	}

	return max(workers, 1)
}
