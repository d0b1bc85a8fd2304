package temporal

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// FrameCount is the number of full frames, or 1 when the signal is shorter
// than one frame and the whole signal is treated as a single frame.
func FrameCount(n, frameSize, hopSize int) int {
	if n == 0 || frameSize <= 0 || hopSize <= 0 {
		return 0
	}
	if n < frameSize {
		return 1
	}
	return (n-frameSize)/hopSize + 1
}

// ComputeRMS computes the RMS envelope with the given frame and hop sizes.
func ComputeRMS(signal []float64, frameSize, hopSize int) []float64 {
	numFrames := FrameCount(len(signal), frameSize, hopSize)
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		frame := frameAt(signal, i, frameSize, hopSize)
		envelope[i] = math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
	}
	return envelope
}

func frameAt(signal []float64, i, frameSize, hopSize int) []float64 {
	start := i * hopSize
	return signal[start:min(start+frameSize, len(signal))]
}

func peakOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Max(floats.Max(x), -floats.Min(x))
}
