package progress

import (
	"context"
)

type Noop struct{}

var _ Sink = Noop{}

func (Noop) Progress(context.Context, string, float64) {}
func (Noop) Info(context.Context, string)              {}
func (Noop) Warn(context.Context, string)              {}
