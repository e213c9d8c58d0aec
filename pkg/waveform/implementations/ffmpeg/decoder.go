// Package ffmpeg demuxes and decodes arbitrary media containers (camera
// recordings: mp4, mov, mts, mkv, ...) by running an external ffmpeg process
// that writes mono S16LE PCM to a pipe.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/waveform/decoder"
	"github.com/xaionaro-go/audiosync/pkg/waveform/registry"
	"github.com/xaionaro-go/datacounter"
)

const (
	Priority = 10

	DefaultBinary     = "ffmpeg"
	DefaultSampleRate = 8000
)

func init() {
	registry.RegisterDecoderFactory(Priority, DecoderFactory{})
}

type DecoderFactory struct{}

func (DecoderFactory) NewDecoder() (decoder.Decoder, error) {
	return NewDecoder(DefaultBinary, DefaultSampleRate)
}

type Decoder struct {
	BinaryPath string
	SampleRate types.SampleRate
}

var _ decoder.Decoder = (*Decoder)(nil)

func NewDecoder(
	binary string,
	sampleRate types.SampleRate,
) (*Decoder, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("unable to find '%s': %w", binary, err)
	}
	return &Decoder{
		BinaryPath: path,
		SampleRate: sampleRate,
	}, nil
}

func (d *Decoder) args(source string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-v", "error",
		"-i", source,
		"-vn",
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", strconv.FormatUint(uint64(d.SampleRate), 10),
		"-f", "s16le",
		"-",
	}
}

func (d *Decoder) Open(
	ctx context.Context,
	source string,
) (decoder.Stream, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, err
	}

	ctx, cancelFn := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, d.BinaryPath, d.args(source)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancelFn()
		return nil, fmt.Errorf("unable to open the stdout pipe: %w", err)
	}
	logger.Debugf(ctx, "running %s %s", d.BinaryPath, strings.Join(d.args(source), " "))
	if err := cmd.Start(); err != nil {
		cancelFn()
		return nil, fmt.Errorf("unable to start '%s': %w", d.BinaryPath, err)
	}

	return &stream{
		ctx:      ctx,
		cancelFn: cancelFn,
		cmd:      cmd,
		stderr:   stderr,
		counter:  datacounter.NewReaderCounter(stdout),
		format: types.Format{
			Channels:   1,
			SampleRate: d.SampleRate,
			PCMFormat:  types.PCMFormatS16LE,
		},
	}, nil
}

type stream struct {
	ctx       context.Context
	cancelFn  context.CancelFunc
	cmd       *exec.Cmd
	stderr    *lockedBuffer
	counter   *datacounter.ReaderCounter
	format    types.Format
	closeOnce sync.Once
	closeErr  error
}

var _ decoder.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.counter.Read(p)
	if errors.Is(err, io.EOF) {
		// the real reason of an early EOF is the exit status
		if waitErr := s.wait(); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (s *stream) Format() types.Format {
	return s.format
}

// Close kills the process if it is still running and waits for it.
func (s *stream) Close() error {
	s.cancelFn()
	return s.wait()
}

func (s *stream) wait() error {
	s.closeOnce.Do(func() {
		err := s.cmd.Wait()
		logger.Debugf(s.ctx, "ffmpeg finished after %d bytes of PCM: %v", s.counter.Count(), err)
		if err == nil {
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && s.ctx.Err() != nil {
			// killed by Close
			return
		}
		msg := strings.TrimSpace(s.stderr.String())
		if strings.Contains(msg, "matches no streams") || strings.Contains(msg, "does not contain any stream") {
			s.closeErr = fmt.Errorf("%w: %s", decoder.ErrNoAudioTrack, msg)
			return
		}
		s.closeErr = fmt.Errorf("ffmpeg failed: %w (%s)", err, msg)
	})
	return s.closeErr
}

type lockedBuffer struct {
	locker sync.Mutex
	buf    bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.buf.String()
}
