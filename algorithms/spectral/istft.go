package spectral

import (
	"context"
	"fmt"
)

// windowSumFloor guards the overlap-add normalization where the squared
// window sum vanishes (signal edges).
const windowSumFloor = 1e-10

// ISTFT inverts a centered STFT (frames x windowSize/2+1 bins) by windowed
// overlap-add, normalizing by the summed squared analysis window. The result
// is trimmed or zero-padded to length samples; length <= 0 keeps the natural
// length. It returns ctx's error if ctx is done between frames.
func ISTFT(ctx context.Context, t Transformer, frames [][]complex128, windowSize, hopSize int, window []float64, length int) ([]float64, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to invert")
	}
	if windowSize <= 0 || hopSize <= 0 {
		return nil, fmt.Errorf("window and hop size must be positive")
	}
	if len(window) != windowSize {
		return nil, fmt.Errorf("window length (%d) doesn't match window size (%d)", len(window), windowSize)
	}
	bins := windowSize/2 + 1
	if t == nil {
		t = NewFFT()
	}

	total := windowSize + hopSize*(len(frames)-1)
	output := make([]float64, total)
	windowSum := make([]float64, total)

	for idx, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("istft cancelled: %w", err)
		}
		if len(frame) != bins {
			return nil, fmt.Errorf("frame %d has %d bins, want %d", idx, len(frame), bins)
		}

		segment := InverseReal(t, mirrorHalfSpectrum(frame, windowSize))
		start := idx * hopSize
		for i := range windowSize {
			output[start+i] += segment[i] * window[i]
			windowSum[start+i] += window[i] * window[i]
		}
	}

	for i := range output {
		if windowSum[i] > windowSumFloor {
			output[i] /= windowSum[i]
		}
	}

	// drop the centering pad
	pad := windowSize / 2
	output = output[min(pad, len(output)):]

	if length <= 0 {
		length = max(len(output)-pad, 0)
	}
	result := make([]float64, length)
	copy(result, output)
	return result, nil
}

