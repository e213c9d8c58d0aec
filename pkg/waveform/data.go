package waveform

import (
	"fmt"
	"math"
)

const DefaultEnvelopeBuckets = 1000

// Data is a mono, linear PCM waveform in range [-1, 1].
type Data struct {
	Samples         []float32
	SampleRate      int
	DurationSeconds float64
}

func NewData(samples []float32, sampleRate int) *Data {
	d := &Data{
		Samples:    samples,
		SampleRate: sampleRate,
	}
	if sampleRate > 0 {
		d.DurationSeconds = float64(len(samples)) / float64(sampleRate)
	}
	return d
}

func (d *Data) Validate() error {
	if d == nil {
		return fmt.Errorf("waveform is nil")
	}
	if d.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: got %d", d.SampleRate)
	}
	if len(d.Samples) == 0 {
		return fmt.Errorf("waveform has no samples")
	}
	return nil
}

// PeakEnvelope returns exactly 'buckets' values, each one the maximal absolute
// sample value within its block of the waveform.
func (d *Data) PeakEnvelope(buckets int) []float32 {
	if buckets <= 0 {
		buckets = DefaultEnvelopeBuckets
	}
	result := make([]float32, buckets)
	n := len(d.Samples)
	if n == 0 {
		return result
	}
	for bucket := 0; bucket < buckets; bucket++ {
		start := bucket * n / buckets
		end := (bucket + 1) * n / buckets
		var peak float32
		for _, v := range d.Samples[start:end] {
			v = float32(math.Abs(float64(v)))
			if v > peak {
				peak = v
			}
		}
		result[bucket] = peak
	}
	return result
}
