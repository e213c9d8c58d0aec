// Package mp3 decodes MPEG-1/2 Layer III files.
package mp3

import (
	"context"
	"fmt"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/implementations/internal/sniff"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
)

const (
	Priority = 70

	// go-mp3 always yields stereo S16LE
	outputChannels = 2
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
	var (
		f   *os.File
		ok  bool
		err error
	)
	if sniff.HasExtension(source, ".mp3") {
		f, err = os.Open(source)
		ok = err == nil
	} else {
		f, ok, err = sniff.OpenWithMagic(source, 0, []byte("ID3"))
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, decoder.ErrUnsupported
	}

	mp3Decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to initialize an mp3 decoder: %w", err)
	}
	if mp3Decoder.SampleRate() <= 0 {
		f.Close()
		return nil, decoder.ErrNoAudioTrack
	}

	return &stream{
		file:    f,
		decoder: mp3Decoder,
		format: types.Format{
			Channels:   outputChannels,
			SampleRate: types.SampleRate(mp3Decoder.SampleRate()),
			PCMFormat:  types.PCMFormatS16LE,
		},
	}, nil
}

type stream struct {
	file    *os.File
	decoder *mp3.Decoder
	format  types.Format
}

var _ decoder.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	return s.decoder.Read(p)
}

func (s *stream) Format() types.Format {
	return s.format
}

func (s *stream) Close() error {
	return s.file.Close()
}
