package resampler

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type sampleDecoder func(p []byte) float64

func int24(b0, b1, b2 byte) float64 {
	v := int32(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16)
	if v&0x800000 != 0 {
		v |= -0x1000000
	}
	return float64(v) / (1 << 23)
}

// decoderFor returns the function converting one sample of one channel
// into a value in [-1, 1].
func decoderFor(f types.PCMFormat) (sampleDecoder, error) {
	le, be := binary.LittleEndian, binary.BigEndian
	switch f {
	case types.PCMFormatU8:
		return func(p []byte) float64 { return (float64(p[0]) - 128) / 128 }, nil
	case types.PCMFormatS16LE:
		return func(p []byte) float64 { return float64(int16(le.Uint16(p))) / (1 << 15) }, nil
	case types.PCMFormatS16BE:
		return func(p []byte) float64 { return float64(int16(be.Uint16(p))) / (1 << 15) }, nil
	case types.PCMFormatS24LE:
		return func(p []byte) float64 { return int24(p[0], p[1], p[2]) }, nil
	case types.PCMFormatS24BE:
		return func(p []byte) float64 { return int24(p[2], p[1], p[0]) }, nil
	case types.PCMFormatS32LE:
		return func(p []byte) float64 { return float64(int32(le.Uint32(p))) / (1 << 31) }, nil
	case types.PCMFormatS32BE:
		return func(p []byte) float64 { return float64(int32(be.Uint32(p))) / (1 << 31) }, nil
	case types.PCMFormatS64LE:
		return func(p []byte) float64 { return float64(int64(le.Uint64(p))) / (1 << 63) }, nil
	case types.PCMFormatS64BE:
		return func(p []byte) float64 { return float64(int64(be.Uint64(p))) / (1 << 63) }, nil
	case types.PCMFormatFloat32LE:
		return func(p []byte) float64 { return float64(math.Float32frombits(le.Uint32(p))) }, nil
	case types.PCMFormatFloat32BE:
		return func(p []byte) float64 { return float64(math.Float32frombits(be.Uint32(p))) }, nil
	case types.PCMFormatFloat64LE:
		return func(p []byte) float64 { return math.Float64frombits(le.Uint64(p)) }, nil
	case types.PCMFormatFloat64BE:
		return func(p []byte) float64 { return math.Float64frombits(be.Uint64(p)) }, nil
	default:
		return nil, fmt.Errorf("unsupported PCM format: %v", f)
	}
}
