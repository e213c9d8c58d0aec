package waveform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
)

const (
	DefaultSampleRate = 8000

	readChunkSize = 64 * 1024
)

type Extractor interface {
	Extract(ctx context.Context, source string) (*Data, error)
}

// DecodingExtractor tries Decoders in order until one of them accepts the
// source, and converts its output to mono float32 at SampleRate.
type DecodingExtractor struct {
	SampleRate types.SampleRate
	Decoders   []decoder.Decoder
}

var _ Extractor = (*DecodingExtractor)(nil)

func NewExtractor(
	sampleRate types.SampleRate,
	decoders ...decoder.Decoder,
) *DecodingExtractor {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	return &DecodingExtractor{
		SampleRate: sampleRate,
		Decoders:   decoders,
	}
}

// NewExtractorAuto builds an extractor from every registered decoder factory.
func NewExtractorAuto(
	ctx context.Context,
	sampleRate types.SampleRate,
) (*DecodingExtractor, error) {
	var (
		decoders []decoder.Decoder
		mErr     *multierror.Error
	)
	for _, factory := range registry.DecoderFactories() {
		dec, err := factory.NewDecoder()
		logger.Debugf(ctx, "initializing decoder %T result is %v", factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize a decoder using %T: %w", factory, err))
			continue
		}
		decoders = append(decoders, dec)
	}
	if len(decoders) == 0 {
		return nil, fmt.Errorf("no audio decoders are available: %w", mErr.ErrorOrNil())
	}
	if err := mErr.ErrorOrNil(); err != nil {
		logger.Warnf(ctx, "some audio decoders are unavailable: %v", err)
	}
	return NewExtractor(sampleRate, decoders...), nil
}

func (e *DecodingExtractor) Extract(
	ctx context.Context,
	source string,
) (_ret *Data, _err error) {
	logger.Debugf(ctx, "Extract(ctx, '%s')", source)
	defer func() { logger.Debugf(ctx, "/Extract(ctx, '%s'): %v", source, _err) }()

	var mErr *multierror.Error
	for _, dec := range e.Decoders {
		stream, err := dec.Open(ctx, source)
		if err != nil {
			if !errors.Is(err, decoder.ErrUnsupported) {
				mErr = multierror.Append(mErr, fmt.Errorf("%T: %w", dec, err))
			}
			continue
		}
		logger.Debugf(ctx, "decoding '%s' with %T, format %#+v", source, dec, stream.Format())

		data, err := e.readStream(ctx, stream)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, &DecodeError{Source: source, Err: err}
		}
		mErr = multierror.Append(mErr, fmt.Errorf("%T: %w", dec, err))
	}

	err := mErr.ErrorOrNil()
	if err == nil {
		err = fmt.Errorf("none of %d decoders recognized the source", len(e.Decoders))
	}
	return nil, &DecodeError{Source: source, Err: err}
}

func (e *DecodingExtractor) readStream(
	ctx context.Context,
	stream decoder.Stream,
) (_ret *Data, _err error) {
	defer func() {
		if err := stream.Close(); err != nil {
			_err = multierror.Append(_err, fmt.Errorf("unable to close the decoding stream: %w", err)).ErrorOrNil()
			if _err != nil {
				_ret = nil
			}
		}
	}()

	r, err := resampler.NewResampler(stream.Format(), stream, e.SampleRate)
	if err != nil {
		return nil, err
	}

	var samples []float32
	buf := make([]float32, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.ReadSamples(buf)
		for _, v := range buf[:n] {
			switch {
			case math.IsNaN(float64(v)):
				v = 0
			case v > 1:
				v = 1
			case v < -1:
				v = -1
			}
			samples = append(samples, v)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read PCM: %w", err)
		}
	}

	if len(samples) == 0 {
		return nil, decoder.ErrNoAudioTrack
	}
	return NewData(samples, int(e.SampleRate)), nil
}
