package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestData_PeakEnvelope(t *testing.T) {
	t.Run("fixed bucket count", func(t *testing.T) {
		samples := make([]float32, 10000)
		samples[1234] = -0.75
		samples[9999] = 0.5
		d := NewData(samples, 1000)
		assert.InDelta(t, 10.0, d.DurationSeconds, 1e-9)

		env := d.PeakEnvelope(DefaultEnvelopeBuckets)
		require.Len(t, env, DefaultEnvelopeBuckets)
		assert.Equal(t, float32(0.75), env[123])
		assert.Equal(t, float32(0.5), env[999])
		assert.Equal(t, float32(0), env[500])
	})

	t.Run("fewer samples than buckets", func(t *testing.T) {
		d := NewData([]float32{0.1, -0.2, 0.3}, 8000)
		env := d.PeakEnvelope(10)
		require.Len(t, env, 10)
		var maxPeak float32
		for _, v := range env {
			if v > maxPeak {
				maxPeak = v
			}
		}
		assert.Equal(t, float32(0.3), maxPeak)
	})

	t.Run("empty", func(t *testing.T) {
		d := NewData(nil, 8000)
		assert.Len(t, d.PeakEnvelope(0), DefaultEnvelopeBuckets)
		assert.Error(t, d.Validate())
	})
}
