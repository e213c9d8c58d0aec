// Package synthetic generates pairs of waveforms that contain the same
// content shifted in time, as if recorded by two cameras started at
// different moments.
package synthetic

import (
	"math"
	"math/rand"

	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

const (
	// pole of the low-pass filter shaping the noise; the closer to 1 the
	// wider the autocorrelation peak of the content
	lowPassPole = 0.95

	toneAmplitude = 0.5
	outputGain    = 0.25
)

type Params struct {
	DurationSeconds float64
	SampleRate      int

	// DelaySeconds is how much later the content appears in B than in A.
	DelaySeconds float64

	// SNRdB is the signal-to-noise ratio of the white noise added
	// independently to each track. Zero means no noise.
	SNRdB float64

	// ToneHz adds a sine component to the content (zero disables it).
	ToneHz float64

	Seed int64
}

// Pair returns waveforms A and B of equal duration, such that
// B(t) = A(t - DelaySeconds).
func Pair(p Params) (*waveform.Data, *waveform.Data) {
	r := rand.New(rand.NewSource(p.Seed))
	n := int(math.Round(p.DurationSeconds * float64(p.SampleRate)))
	delay := int(math.Round(p.DelaySeconds * float64(p.SampleRate)))
	absDelay := delay
	if absDelay < 0 {
		absDelay = -absDelay
	}

	content := Content(n+absDelay, p.SampleRate, p.ToneHz, r)
	offsetA, offsetB := delay, 0
	if delay < 0 {
		offsetA, offsetB = 0, absDelay
	}

	power := 1.0
	if p.ToneHz > 0 {
		power += toneAmplitude * toneAmplitude / 2
	}
	noiseStd := 0.0
	if p.SNRdB != 0 {
		noiseStd = math.Sqrt(power / math.Pow(10, p.SNRdB/10))
	}

	render := func(offset int) *waveform.Data {
		samples := make([]float32, n)
		for i := range samples {
			v := content[i+offset]
			if noiseStd > 0 {
				v += r.NormFloat64() * noiseStd
			}
			samples[i] = float32(clamp(v * outputGain))
		}
		return waveform.NewData(samples, p.SampleRate)
	}
	return render(offsetA), render(offsetB)
}

// Content returns n samples of low-pass filtered noise normalized to unit
// variance, optionally with a tone of frequency toneHz mixed in.
func Content(n, sampleRate int, toneHz float64, r *rand.Rand) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	var y float64
	for i := range out {
		y = lowPassPole*y + (1-lowPassPole)*(r.Float64()*2-1)
		out[i] = y
	}

	var mean, variance float64
	for _, v := range out {
		mean += v
	}
	mean /= float64(n)
	for _, v := range out {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)
	std := math.Sqrt(variance)
	if std == 0 {
		std = 1
	}

	for i := range out {
		out[i] = (out[i] - mean) / std
		if toneHz > 0 {
			out[i] += toneAmplitude * math.Sin(2*math.Pi*toneHz*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// Silence returns a waveform of zeros.
func Silence(durationSeconds float64, sampleRate int) *waveform.Data {
	n := int(math.Round(durationSeconds * float64(sampleRate)))
	return waveform.NewData(make([]float32, n), sampleRate)
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
