// Package vorbis decodes Ogg Vorbis files.
package vorbis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/implementations/internal/sniff"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
)

const (
	Priority = 80
)

func init() {
	registry.RegisterDecoderFactory(Priority, DecoderFactory{})
}

type DecoderFactory struct{}

func (DecoderFactory) NewDecoder() (decoder.Decoder, error) {
	return Decoder{}, nil
}

type Decoder struct{}

var _ decoder.Decoder = Decoder{}

func (Decoder) Open(
	ctx context.Context,
	source string,
) (decoder.Stream, error) {
	f, ok, err := sniff.OpenWithMagic(source, 0, []byte("OggS"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decoder.ErrUnsupported
	}

	oggReader, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}
	if oggReader.Channels() <= 0 || oggReader.SampleRate() <= 0 {
		f.Close()
		return nil, decoder.ErrNoAudioTrack
	}

	return &stream{
		file:   f,
		reader: oggReader,
		format: types.Format{
			Channels:   types.Channel(oggReader.Channels()),
			SampleRate: types.SampleRate(oggReader.SampleRate()),
			PCMFormat:  types.PCMFormatFloat32LE,
		},
	}, nil
}

// stream converts the float32 samples of the vorbis reader to F32LE bytes.
type stream struct {
	file   *os.File
	reader *oggvorbis.Reader
	format types.Format
	buf    []float32
}

var _ decoder.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	channels := int(s.format.Channels)
	samples := len(p) / 4 / channels * channels
	if samples == 0 {
		return 0, fmt.Errorf("the provided output buffer is too short: %d", len(p))
	}
	if cap(s.buf) < samples {
		s.buf = make([]float32, samples)
	}
	buf := s.buf[:samples]

	n, err := s.reader.Read(buf)
	for i, v := range buf[:n] {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return n * 4, err
}

func (s *stream) Format() types.Format {
	return s.format
}

func (s *stream) Close() error {
	return s.file.Close()
}
