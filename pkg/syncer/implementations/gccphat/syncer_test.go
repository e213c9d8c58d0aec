package gccphat

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
	"github.com/xaionaro-go/audiosync/pkg/waveform/synthetic"
)

func impulse(n, at int) *waveform.Data {
	samples := make([]float32, n)
	samples[at] = 1.0
	return waveform.NewData(samples, 44100)
}

func TestSyncer_CalculateShiftBetween(t *testing.T) {
	s := NewSyncer(0, nil)
	ctx := context.Background()

	t.Run("ahead by 10", func(t *testing.T) {
		ref := impulse(1000, 500)
		comp := impulse(1000, 490) // the event happens 10 samples earlier in comp

		results, err := s.CalculateShiftBetween(ctx, ref, comp)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, -10.0, results[0].OffsetSeconds*44100, 0.5)
		assert.Greater(t, results[0].Confidence, 0.4)
	})

	t.Run("delayed by 10", func(t *testing.T) {
		ref := impulse(1000, 500)
		comp := impulse(1000, 510)

		results, err := s.CalculateShiftBetween(ctx, ref, comp)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 10.0, results[0].OffsetSeconds*44100, 0.5)
		assert.Greater(t, results[0].Confidence, 0.4)
	})

	t.Run("no shift", func(t *testing.T) {
		results, err := s.CalculateShiftBetween(ctx, impulse(1000, 500), impulse(1000, 500))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 0.0, results[0].OffsetSeconds*44100, 0.5)
		assert.Greater(t, results[0].Confidence, 0.4)
	})

	t.Run("noisy content delayed by 1.25s", func(t *testing.T) {
		a, b := synthetic.Pair(synthetic.Params{
			DurationSeconds: 20,
			SampleRate:      8000,
			DelaySeconds:    1.25,
			SNRdB:           20,
			Seed:            1,
		})
		results, err := NewSyncer(5, nil).CalculateShiftBetween(ctx, a, b)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 1.25, results[0].OffsetSeconds, 0.01)
		require.Len(t, results[0].Phases, 1)
		assert.Equal(t, 10000, results[0].Phases[0].OffsetSamples)
	})

	t.Run("mismatched sample rates", func(t *testing.T) {
		_, err := s.CalculateShiftBetween(ctx, impulse(1000, 5), waveform.NewData(make([]float32, 10), 8000))
		assert.ErrorIs(t, err, syncer.ErrInvalidInput)
	})
}

func TestCrossCorrelate(t *testing.T) {
	t.Run("length mismatch", func(t *testing.T) {
		_, _, err := CrossCorrelate(make([]complex128, 4), make([]complex128, 8), 8000, 0, 0, 0)
		assert.Error(t, err)
	})
	t.Run("band above Nyquist is clamped", func(t *testing.T) {
		ref := impulse(512, 100)
		comp := impulse(512, 107)
		n := FFTSize(512, 512)
		delay, confidence, err := CrossCorrelate(Spectrum(ref.Samples, n), Spectrum(comp.Samples, n), 8000, 100, 12000, 0)
		require.NoError(t, err)
		assert.InDelta(t, 7.0, delay, 0.5)
		assert.Greater(t, confidence, 0.4)
	})
	t.Run("max lag limits the search", func(t *testing.T) {
		ref := impulse(512, 100)
		comp := impulse(512, 400)
		n := FFTSize(512, 512)
		delay, _, err := CrossCorrelate(Spectrum(ref.Samples, n), Spectrum(comp.Samples, n), 8000, 0, 0, 50)
		require.NoError(t, err)
		assert.LessOrEqual(t, math.Abs(delay), 51.0)
	})
}

func BenchmarkSyncer_CalculateShiftBetween(b *testing.B) {
	s := NewSyncer(0, nil)
	ctx := context.Background()

	for _, seconds := range []float64{1, 10, 60} {
		b.Run(fmt.Sprintf("seconds-%v", seconds), func(b *testing.B) {
			ref, comp := synthetic.Pair(synthetic.Params{
				DurationSeconds: seconds,
				SampleRate:      8000,
				DelaySeconds:    seconds / 10,
				Seed:            1,
			})
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, err := s.CalculateShiftBetween(ctx, ref, comp)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
