package synthetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair(t *testing.T) {
	for _, delay := range []float64{1.5, -0.75, 0} {
		a, b := Pair(Params{
			DurationSeconds: 5,
			SampleRate:      1000,
			DelaySeconds:    delay,
			Seed:            1,
		})
		require.Len(t, a.Samples, 5000)
		require.Len(t, b.Samples, 5000)
		assert.InDelta(t, 5.0, a.DurationSeconds, 1e-9)

		d := int(delay * 1000)
		for n := 2000; n < 3000; n++ {
			// B(t) = A(t - delay)
			require.Equal(t, a.Samples[n-d], b.Samples[n], "delay %v, sample %d", delay, n)
		}
	}
}

func TestSilence(t *testing.T) {
	s := Silence(2, 8000)
	assert.Len(t, s.Samples, 16000)
	assert.NoError(t, s.Validate())
}
