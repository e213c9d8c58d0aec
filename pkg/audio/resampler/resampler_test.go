package resampler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

func readAll(t *testing.T, r *Resampler, chunkSize int) []float32 {
	t.Helper()
	var result []float32
	buf := make([]float32, chunkSize)
	for range 1_000_000 {
		n, err := r.ReadSamples(buf)
		result = append(result, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return result
		}
		require.NoError(t, err)
	}
	t.Fatal("the resampler never finished")
	return nil
}

func s16le(values ...int16) []byte {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	return data
}

func TestResampler(t *testing.T) {
	t.Run("Identity_S16LE_Mono", func(t *testing.T) {
		values := make([]int16, 100)
		for i := range values {
			values[i] = int16(i*300 - 15000)
		}
		r, err := NewResampler(types.Format{
			Channels:   1,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(s16le(values...)), 8000)
		require.NoError(t, err)

		out := readAll(t, r, 1024)
		require.Len(t, out, len(values))
		for i, v := range values {
			assert.InDelta(t, float64(v)/32768, out[i], 1e-6)
		}
	})

	t.Run("Formats", func(t *testing.T) {
		for _, tc := range []struct {
			format   types.PCMFormat
			data     []byte
			expected []float64
		}{
			{types.PCMFormatU8, []byte{0, 128, 255}, []float64{-1, 0, 127.0 / 128}},
			{types.PCMFormatS16BE, []byte{0x80, 0x00, 0x40, 0x00}, []float64{-1, 0.5}},
			{types.PCMFormatS24LE, []byte{0x00, 0x00, 0xc0, 0x00, 0x00, 0x40}, []float64{-0.5, 0.5}},
			{types.PCMFormatS24BE, []byte{0xc0, 0x00, 0x00, 0x40, 0x00, 0x00}, []float64{-0.5, 0.5}},
			{types.PCMFormatFloat32BE, binary.BigEndian.AppendUint32(nil, math.Float32bits(0.25)), []float64{0.25}},
			{types.PCMFormatFloat64LE, binary.LittleEndian.AppendUint64(nil, math.Float64bits(-0.75)), []float64{-0.75}},
		} {
			t.Run(tc.format.String(), func(t *testing.T) {
				r, err := NewResampler(types.Format{
					Channels:   1,
					SampleRate: 8000,
					PCMFormat:  tc.format,
				}, bytes.NewReader(tc.data), 8000)
				require.NoError(t, err)

				out := readAll(t, r, 16)
				require.Len(t, out, len(tc.expected))
				for i, v := range tc.expected {
					assert.InDelta(t, v, out[i], 1e-6)
				}
			})
		}
	})

	t.Run("Downsampling_Averages", func(t *testing.T) {
		r, err := NewResampler(types.Format{
			Channels:   1,
			SampleRate: 16000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(s16le(16384, 0, -16384, -16384, 8192, 8192)), 8000)
		require.NoError(t, err)

		out := readAll(t, r, 16)
		require.Len(t, out, 3)
		assert.InDelta(t, 0.25, out[0], 1e-6)
		assert.InDelta(t, -0.5, out[1], 1e-6)
		assert.InDelta(t, 0.25, out[2], 1e-6)
	})

	t.Run("Downsampling_NonIntegerRatio", func(t *testing.T) {
		n := 44100
		r, err := NewResampler(types.Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(make([]byte, 2*n)), 8000)
		require.NoError(t, err)

		assert.Len(t, readAll(t, r, 1000), 8000)
	})

	t.Run("Upsampling_Holds", func(t *testing.T) {
		r, err := NewResampler(types.Format{
			Channels:   1,
			SampleRate: 4000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(s16le(16384, -8192)), 8000)
		require.NoError(t, err)

		out := readAll(t, r, 16)
		require.Len(t, out, 4)
		assert.InDeltaSlice(t, []float32{0.5, 0.5, -0.25, -0.25}, out, 1e-6)
	})

	t.Run("Stereo_to_Mono", func(t *testing.T) {
		r, err := NewResampler(types.Format{
			Channels:   2,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(s16le(16384, 0, -16384, 16384)), 8000)
		require.NoError(t, err)

		out := readAll(t, r, 16)
		require.Len(t, out, 2)
		assert.InDelta(t, 0.25, out[0], 1e-6)
		assert.InDelta(t, 0, out[1], 1e-6)
	})

	t.Run("SplitFrames", func(t *testing.T) {
		values := make([]int16, 2000)
		for i := range values {
			values[i] = int16(10000 * math.Sin(float64(i)/7))
		}
		format := types.Format{
			Channels:   2,
			SampleRate: 16000,
			PCMFormat:  types.PCMFormatS16LE,
		}

		whole, err := NewResampler(format, bytes.NewReader(s16le(values...)), 8000)
		require.NoError(t, err)
		expected := readAll(t, whole, 4096)
		require.Len(t, expected, 500)

		// the pipe of a decoding process may split frames between reads
		split, err := NewResampler(format, iotest.OneByteReader(bytes.NewReader(s16le(values...))), 8000)
		require.NoError(t, err)
		assert.Equal(t, expected, readAll(t, split, 3))
	})

	t.Run("ReadError", func(t *testing.T) {
		errBroken := errors.New("broken")
		r, err := NewResampler(types.Format{
			Channels:   1,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatS16LE,
		}, iotest.ErrReader(errBroken), 8000)
		require.NoError(t, err)

		_, err = r.ReadSamples(make([]float32, 16))
		require.ErrorIs(t, err, errBroken)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		_, err := NewResampler(types.Format{
			Channels:   0,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(nil), 8000)
		assert.Error(t, err)

		_, err = NewResampler(types.Format{
			Channels:   1,
			SampleRate: 8000,
			PCMFormat:  types.PCMFormatS16LE,
		}, bytes.NewReader(nil), 0)
		assert.Error(t, err)
	})
}
