// Package planar converts per-channel sample blocks into interleaved PCM.
package planar

import (
	"encoding/binary"
	"fmt"
)

// InterleavedSize returns the amount of bytes InterleaveS32LE writes for
// the given channel blocks.
func InterleavedSize(channels [][]int32) int {
	if len(channels) == 0 {
		return 0
	}
	return len(channels) * len(channels[0]) * 4
}

// InterleaveS32LE writes the samples of channels frame after frame into
// output as S32LE, shifting every sample left by shift bits (to widen
// narrower samples to the full 32-bit range).
//
// All channels must have the same amount of samples, and output must be
// exactly InterleavedSize(channels) bytes long.
func InterleaveS32LE(output []byte, shift uint, channels ...[]int32) error {
	if len(channels) == 0 {
		return fmt.Errorf("no channels provided")
	}
	if shift >= 32 {
		return fmt.Errorf("the shift is too large: %d", shift)
	}
	samplesPerChan := len(channels[0])
	for ch, samples := range channels {
		if len(samples) != samplesPerChan {
			return fmt.Errorf("channel %d has %d samples instead of %d", ch, len(samples), samplesPerChan)
		}
	}
	if expected := InterleavedSize(channels); len(output) != expected {
		return fmt.Errorf("the output buffer has %d bytes instead of %d", len(output), expected)
	}

	frameSize := 4 * len(channels)
	for ch, samples := range channels {
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*frameSize+ch*4:], uint32(sample<<shift))
		}
	}
	return nil
}
