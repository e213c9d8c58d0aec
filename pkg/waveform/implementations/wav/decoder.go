// Package wav decodes RIFF/WAVE files (integer and IEEE float PCM).
package wav

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/implementations/internal/sniff"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
)

const (
	Priority = 100

	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
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
	f, ok, err := sniff.OpenWithMagic(source, 8, []byte("WAVE"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decoder.ErrUnsupported
	}

	d := wav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to find the PCM chunk: %w", err)
	}
	if d.PCMChunk == nil || d.NumChans == 0 {
		f.Close()
		return nil, decoder.ErrNoAudioTrack
	}

	sampleFormat, err := pcmFormat(d.WavAudioFormat, d.BitDepth)
	if err != nil {
		f.Close()
		return nil, err
	}

	// the chunk reader is not bounded by the chunk size by itself
	pcm := io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size))
	return &stream{
		file: f,
		pcm:  pcm,
		format: types.Format{
			Channels:   types.Channel(d.NumChans),
			SampleRate: types.SampleRate(d.SampleRate),
			PCMFormat:  sampleFormat,
		},
	}, nil
}

func pcmFormat(audioFormat uint16, bitDepth uint16) (types.PCMFormat, error) {
	switch audioFormat {
	case wavFormatPCM, wavFormatExtensible:
		switch bitDepth {
		case 8:
			return types.PCMFormatU8, nil
		case 16:
			return types.PCMFormatS16LE, nil
		case 24:
			return types.PCMFormatS24LE, nil
		case 32:
			return types.PCMFormatS32LE, nil
		}
	case wavFormatIEEEFloat:
		switch bitDepth {
		case 32:
			return types.PCMFormatFloat32LE, nil
		case 64:
			return types.PCMFormatFloat64LE, nil
		}
	}
	return types.PCMFormatUndefined, fmt.Errorf("unsupported WAV sample format %d with bit depth %d", audioFormat, bitDepth)
}

type stream struct {
	file   *os.File
	pcm    io.Reader
	format types.Format
}

var _ decoder.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	return s.pcm.Read(p)
}

func (s *stream) Format() types.Format {
	return s.format
}

func (s *stream) Close() error {
	return s.file.Close()
}
