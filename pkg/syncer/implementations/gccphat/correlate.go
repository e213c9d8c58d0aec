package gccphat

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// bins more than 60dB below the strongest cross-power bin are left out
	// of whitening, otherwise numerical noise gets amplified to unit magnitude
	whiteningFloor = 0.001

	epsilon = 1e-12
)

// CrossCorrelate estimates the delay of the comparison relative to the
// reference using GCC-PHAT. fref and fcomp are spectra of the same length
// (see Spectrum).
//
// minFreq and maxFreq limit the band (0 means no limit, maxFreq is clamped
// to Nyquist); maxLag limits the absolute delay in samples (0 means no limit).
//
// A positive delay means comp(t) = ref(t-delay), i.e. the comparison is late.
// The confidence is the height of the correlation peak normalized to [0, 1].
func CrossCorrelate(
	fref, fcomp []complex128,
	sampleRate float64,
	minFreq, maxFreq float64,
	maxLag int,
) (float64, float64, error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("sampleRate must be positive: got %v", sampleRate)
	}
	if len(fref) != len(fcomp) {
		return 0, 0, fmt.Errorf("fref and fcomp must have same length: %d != %d", len(fref), len(fcomp))
	}
	n := len(fref)
	if n == 0 {
		return 0, 0, fmt.Errorf("empty spectrum")
	}

	whitened, activeBins := whiten(fref, fcomp, newBand(n, sampleRate, minFreq, maxFreq))
	if activeBins == 0 {
		return 0, 0, nil
	}
	correlation := fft.IFFT(whitened)

	peakIdx, peak := findPeak(correlation, maxLag)
	delay := float64(signedLag(peakIdx, n))
	delay += parabolicOffset(
		cmplx.Abs(correlation[(peakIdx-1+n)%n]),
		peak,
		cmplx.Abs(correlation[(peakIdx+1)%n]),
	)

	// in a perfect match the peak equals activeBins/n, since IFFT divides by n
	confidence := math.Min(peak*float64(n)/float64(activeBins), 1)
	return delay, confidence, nil
}

// whiten returns the phase-transformed cross-power spectrum within the band
// and the amount of bins that contributed to it.
func whiten(fref, fcomp []complex128, b band) ([]complex128, int) {
	n := len(fref)
	cross := make([]complex128, n)
	var strongest float64
	for i := range cross {
		cross[i] = fcomp[i] * cmplx.Conj(fref[i])
		strongest = math.Max(strongest, cmplx.Abs(cross[i]))
	}
	floor := math.Max(strongest*whiteningFloor, epsilon)

	active := 0
	for i, v := range cross {
		mag := cmplx.Abs(v)
		if !b.contains(n, i) || mag <= floor {
			cross[i] = 0
			continue
		}
		cross[i] = v / complex(mag, 0)
		active++
	}
	return cross, active
}

// findPeak returns the index and the magnitude of the strongest value of
// the correlation whose lag is within maxLag (if maxLag > 0).
func findPeak(correlation []complex128, maxLag int) (int, float64) {
	n := len(correlation)
	peakIdx, peak := 0, -1.0
	for i, v := range correlation {
		if maxLag > 0 {
			if lag := signedLag(i, n); lag > maxLag || lag < -maxLag {
				continue
			}
		}
		if mag := cmplx.Abs(v); mag > peak {
			peakIdx, peak = i, mag
		}
	}
	return peakIdx, peak
}

// signedLag maps a circular correlation index to a lag in (-n/2, n/2].
func signedLag(idx, n int) int {
	if idx > n/2 {
		return idx - n
	}
	return idx
}

// parabolicOffset returns the sub-sample position of the vertex of the
// parabola through (-1, y1), (0, y2), (1, y3), or 0 if it is degenerate
// or outside of the neighbourhood.
func parabolicOffset(y1, y2, y3 float64) float64 {
	denom := y1 - 2*y2 + y3
	if math.Abs(denom) <= epsilon {
		return 0
	}
	d := (y1 - y3) / (2 * denom)
	if d < -1 || d > 1 {
		return 0
	}
	return d
}
