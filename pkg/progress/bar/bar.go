// Package bar renders analysis progress as a terminal progress bar.
package bar

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/xaionaro-go/audiosync/pkg/progress"
)

const total = 1000

type Sink struct {
	container *mpb.Progress
	bar       *mpb.Bar

	locker sync.Mutex
	stage  string
}

var _ progress.Sink = (*Sink)(nil)

func New(output io.Writer) *Sink {
	s := &Sink{
		container: mpb.New(mpb.WithWidth(64), mpb.WithOutput(output)),
	}
	s.bar = s.container.AddBar(total,
		mpb.PrependDecorators(
			decor.Name("audio sync: "),
			decor.Any(func(decor.Statistics) string {
				s.locker.Lock()
				defer s.locker.Unlock()
				return fmt.Sprintf("%-20s", s.stage)
			}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)
	return s
}

func (s *Sink) Progress(ctx context.Context, stage string, percent float64) {
	s.locker.Lock()
	s.stage = stage
	s.locker.Unlock()
	s.bar.SetCurrent(int64(percent * total / 100))
}

func (s *Sink) Info(ctx context.Context, message string) {
	logger.Infof(ctx, "%s", message)
}

func (s *Sink) Warn(ctx context.Context, message string) {
	logger.Warnf(ctx, "%s", message)
}

// Close completes the bar (if the analysis was interrupted) and waits
// until it is rendered.
func (s *Sink) Close() error {
	if !s.bar.Completed() {
		s.bar.Abort(false)
	}
	s.container.Wait()
	return nil
}
