package gccphat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedLag(t *testing.T) {
	assert.Equal(t, 0, signedLag(0, 8))
	assert.Equal(t, 4, signedLag(4, 8))
	assert.Equal(t, -3, signedLag(5, 8))
	assert.Equal(t, -1, signedLag(7, 8))
}

func TestParabolicOffset(t *testing.T) {
	// vertex of -(x-0.25)^2 sampled at -1, 0, 1
	f := func(x float64) float64 { return -(x - 0.25) * (x - 0.25) }
	assert.InDelta(t, 0.25, parabolicOffset(f(-1), f(0), f(1)), 1e-9)
	assert.Zero(t, parabolicOffset(1, 1, 1))
}

func TestBand(t *testing.T) {
	b := newBand(1024, 8000, 100, 12000)
	require.Equal(t, 12, b.lo)
	require.Equal(t, 512, b.hi, "clamped to Nyquist")
	assert.True(t, b.contains(1024, 12))
	assert.True(t, b.contains(1024, 1024-12))
	assert.False(t, b.contains(1024, 11))
	assert.Equal(t, 2*(512-12), ActiveBins(1024, 8000, 100, 12000))
	assert.Equal(t, 1, ActiveBins(1024, 8000, 4000, 100))
}

func TestWhiten(t *testing.T) {
	fref := Spectrum([]float32{1, 0, 0, 0}, 8)
	fcomp := Spectrum([]float32{0, 1, 0, 0}, 8)
	whitened, active := whiten(fref, fcomp, newBand(8, 8000, 0, 0))
	require.Equal(t, 8, active)
	for _, v := range whitened {
		assert.InDelta(t, 1, real(v)*real(v)+imag(v)*imag(v), 1e-9)
	}
}
