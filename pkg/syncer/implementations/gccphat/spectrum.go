package gccphat

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFTSize returns the smallest power of two that fits a linear (not
// circular) correlation of signals of lengths n1 and n2.
func FFTSize(n1, n2 int) int {
	n := 1
	for n < n1+n2-1 {
		n <<= 1
	}
	return n
}

// Spectrum zero-pads samples to n and transforms them to the frequency domain.
func Spectrum(samples []float32, n int) []complex128 {
	buf := make([]complex128, n)
	for i, v := range samples[:min(len(samples), n)] {
		buf[i] = complex(float64(v), 0)
	}
	return fft.FFT(buf)
}

// band is an inclusive range of FFT bin indexes (counted from DC, so that
// bin i and bin n-i share the same index).
type band struct {
	lo, hi int
}

func newBand(n int, sampleRate, minFreq, maxFreq float64) band {
	b := band{hi: n / 2}
	if minFreq > 0 {
		b.lo = int(minFreq * float64(n) / sampleRate)
	}
	if maxFreq > 0 && maxFreq < sampleRate/2 {
		b.hi = int(maxFreq * float64(n) / sampleRate)
	}
	return b
}

func (b band) contains(n, bin int) bool {
	if bin > n/2 {
		bin = n - bin
	}
	return bin >= b.lo && bin <= b.hi
}

// ActiveBins returns how many bins of a spectrum of size n are within the band.
func ActiveBins(n int, sampleRate, minFreq, maxFreq float64) int {
	b := newBand(n, sampleRate, minFreq, maxFreq)
	return max(2*(b.hi-b.lo), 1)
}
