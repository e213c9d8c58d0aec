// Package resampler turns an interleaved PCM stream of any supported
// format into mono float32 samples at the requested sample rate.
//
// Channels are averaged. When downsampling, every output sample is the
// average of the input frames it covers, which is enough of a low-pass for
// energy profiles; when upsampling, input frames are held.
package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const maxReadFrames = 64 * 1024

type Resampler struct {
	locker sync.Mutex

	in       io.Reader
	inFormat types.Format
	outRate  types.SampleRate
	decode   sampleDecoder

	frameSize int
	buffer    []byte
	leftover  []byte

	framesIn   uint64
	samplesOut uint64
	curOut     uint64
	sum        float64
	count      int
	last       float32

	pending []float32
	err     error
}

func NewResampler(
	inFormat types.Format,
	in io.Reader,
	outRate types.SampleRate,
) (*Resampler, error) {
	if err := inFormat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input format %#+v: %w", inFormat, err)
	}
	if outRate == 0 {
		return nil, fmt.Errorf("the output sample rate is mandatory")
	}
	decode, err := decoderFor(inFormat.PCMFormat)
	if err != nil {
		return nil, err
	}
	return &Resampler{
		in:        in,
		inFormat:  inFormat,
		outRate:   outRate,
		decode:    decode,
		frameSize: int(inFormat.BytesPerFrame()),
	}, nil
}

// ReadSamples fills dst with the next mono samples. It returns io.EOF
// (possibly together with the last samples) when the input is exhausted.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	for len(r.pending) < len(dst) && r.err == nil {
		before := len(r.pending)
		r.err = r.fill(len(dst) - len(r.pending))
		if len(r.pending) == before {
			break
		}
	}

	n := copy(dst, r.pending)
	r.pending = r.pending[:copy(r.pending, r.pending[n:])]
	if len(r.pending) == 0 && r.err != nil {
		return n, r.err
	}
	return n, nil
}

// fill reads enough input for about 'want' output samples.
func (r *Resampler) fill(want int) error {
	frames := uint64(want)*uint64(r.inFormat.SampleRate)/uint64(r.outRate) + 1
	frames = min(frames, maxReadFrames)
	size := int(frames)*r.frameSize + len(r.leftover)
	if cap(r.buffer) < size {
		r.buffer = make([]byte, size)
	}
	r.buffer = r.buffer[:size]

	// a pipe may split a frame between reads
	have := copy(r.buffer, r.leftover)
	n, err := r.in.Read(r.buffer[have:])
	if n < 0 {
		return fmt.Errorf("the input returned a negative count: %d", n)
	}
	n += have
	usable := n - n%r.frameSize
	r.leftover = append(r.leftover[:0], r.buffer[usable:n]...)

	channels := int(r.inFormat.Channels)
	sampleSize := int(r.inFormat.PCMFormat.Size())
	for off := 0; off < usable; off += r.frameSize {
		var v float64
		for c := range channels {
			v += r.decode(r.buffer[off+c*sampleSize:])
		}
		r.push(v / float64(channels))
	}

	switch {
	case errors.Is(err, io.EOF):
		r.flush()
		return io.EOF
	case err != nil:
		return err
	}
	return nil
}

// push accounts one input frame of value v.
func (r *Resampler) push(v float64) {
	k := r.framesIn * uint64(r.outRate) / uint64(r.inFormat.SampleRate)
	r.framesIn++
	if r.count > 0 && k != r.curOut {
		r.emit()
		for r.samplesOut < k {
			r.pending = append(r.pending, r.last)
			r.samplesOut++
		}
	}
	if r.count == 0 {
		r.curOut = k
	}
	r.sum += v
	r.count++
}

func (r *Resampler) emit() {
	r.last = float32(r.sum / float64(r.count))
	r.pending = append(r.pending, r.last)
	r.samplesOut++
	r.sum, r.count = 0, 0
}

func (r *Resampler) flush() {
	if r.count == 0 {
		return
	}
	r.emit()
	expected := (r.framesIn*uint64(r.outRate) + uint64(r.inFormat.SampleRate) - 1) / uint64(r.inFormat.SampleRate)
	for r.samplesOut < expected {
		r.pending = append(r.pending, r.last)
		r.samplesOut++
	}
}
