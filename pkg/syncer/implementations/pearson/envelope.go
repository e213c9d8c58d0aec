package pearson

import (
	"math"
)

// envelope returns the mean absolute value of every consecutive block of
// hop samples. A trailing partial block is dropped.
func envelope(samples []float32, hop int) []float32 {
	if hop <= 1 {
		out := make([]float32, len(samples))
		for i, v := range samples {
			out[i] = float32(math.Abs(float64(v)))
		}
		return out
	}
	out := make([]float32, len(samples)/hop)
	for i := range out {
		var sum float64
		for _, v := range samples[i*hop : (i+1)*hop] {
			sum += math.Abs(float64(v))
		}
		out[i] = float32(sum / float64(hop))
	}
	return out
}

// envelopeHop returns the block size of the envelope such that one coarse
// step is one envelope sample.
func envelopeHop(coarseStepSeconds, sampleRate float64) int {
	return max(1, int(math.Floor(coarseStepSeconds*sampleRate+1e-9)))
}
