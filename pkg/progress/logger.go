package progress

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Logger forwards everything to the logger of the context.
type Logger struct{}

var _ Sink = Logger{}

func (Logger) Progress(ctx context.Context, stage string, percent float64) {
	logger.Debugf(ctx, "progress: %s: %.1f%%", stage, percent)
}

func (Logger) Info(ctx context.Context, message string) {
	logger.Infof(ctx, "%s", message)
}

func (Logger) Warn(ctx context.Context, message string) {
	logger.Warnf(ctx, "%s", message)
}
