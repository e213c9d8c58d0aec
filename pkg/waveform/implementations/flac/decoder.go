// Package flac decodes FLAC files frame by frame.
package flac

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/xaionaro-go/audiosync/pkg/audio/planar"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/implementations/internal/sniff"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
)

const (
	Priority = 90

	// every frame is widened to S32LE
	bitsPerStreamSample = 32
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
	f, ok, err := sniff.OpenWithMagic(source, 0, []byte("fLaC"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decoder.ErrUnsupported
	}

	// the stream takes the ownership of the file: closing the stream closes the file
	flacStream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to parse the FLAC stream info: %w", err)
	}
	info := flacStream.Info
	if info == nil || info.NChannels == 0 || info.SampleRate == 0 {
		flacStream.Close()
		return nil, decoder.ErrNoAudioTrack
	}
	if info.BitsPerSample == 0 || info.BitsPerSample > 32 {
		flacStream.Close()
		return nil, fmt.Errorf("unsupported bits per sample: %d", info.BitsPerSample)
	}

	return &stream{
		flac:          flacStream,
		bitsPerSample: uint(info.BitsPerSample),
		format: types.Format{
			Channels:   types.Channel(info.NChannels),
			SampleRate: types.SampleRate(info.SampleRate),
			PCMFormat:  types.PCMFormatS32LE,
		},
	}, nil
}

type stream struct {
	flac          *flac.Stream
	bitsPerSample uint
	format        types.Format

	channelBuf [][]int32
	pending    []byte
	pendingBuf []byte
}

var _ decoder.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if err := s.decodeNextFrame(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *stream) decodeNextFrame() error {
	frame, err := s.flac.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("unable to parse a FLAC frame: %w", err)
	}
	channels := int(s.format.Channels)
	if len(frame.Subframes) != channels {
		return fmt.Errorf("expected %d subframes, got %d", channels, len(frame.Subframes))
	}
	s.channelBuf = s.channelBuf[:0]
	for _, subframe := range frame.Subframes {
		s.channelBuf = append(s.channelBuf, subframe.Samples)
	}
	size := planar.InterleavedSize(s.channelBuf)
	if cap(s.pendingBuf) < size {
		s.pendingBuf = make([]byte, size)
	}

	out := s.pendingBuf[:size]
	shift := bitsPerStreamSample - s.bitsPerSample
	if err := planar.InterleaveS32LE(out, shift, s.channelBuf...); err != nil {
		return fmt.Errorf("unable to interleave the FLAC frame: %w", err)
	}
	s.pending = out
	return nil
}

func (s *stream) Format() types.Format {
	return s.format
}

func (s *stream) Close() error {
	return s.flac.Close()
}
