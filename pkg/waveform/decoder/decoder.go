// Package decoder defines the contract between the waveform extractor and the
// container/codec specific decoders.
package decoder

import (
	"context"
	"errors"
	"io"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// ErrUnsupported is returned by a Decoder that does not recognize the source,
// so that the next decoder may be tried.
var ErrUnsupported = errors.New("unsupported source")

// ErrNoAudioTrack is returned when the source is readable but carries no audio.
var ErrNoAudioTrack = errors.New("the source has no audio track")

// Stream is an open decoding context. It yields interleaved PCM in Format()
// and must be closed by whoever opened it, regardless of read errors.
type Stream interface {
	io.ReadCloser
	Format() types.Format
}

type Decoder interface {
	Open(ctx context.Context, source string) (Stream, error)
}

/* for easier copy&paste:

func () Open(
	ctx context.Context,
	source string,
) (decoder.Stream, error) {
}

*/
