package progress

import (
	"context"
	"math"
)

// Sink receives analysis progress and operator-facing status messages.
// Every call is advisory: implementations must not block and must not fail.
type Sink interface {
	// Progress reports that the analysis reached 'percent' (0..100) of
	// its work, currently being in stage 'stage'.
	Progress(ctx context.Context, stage string, percent float64)

	Info(ctx context.Context, message string)
	Warn(ctx context.Context, message string)
}

const (
	StageExtractReference  = "extracting audio (A)"
	StageExtractComparison = "extracting audio (B)"
	StageCoarse            = "coarse search"
	StageRefine            = "refinement"
	StageFine              = "ultra-fine search"
	StageDone              = "done"
)

// OrNoop returns s, or a no-op sink if s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return Noop{}
	}
	return s
}

func clampPercent(percent float64) float64 {
	switch {
	case math.IsNaN(percent):
		return 0
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}

/* for easier copy&paste:

func () Progress(
	ctx context.Context,
	stage string,
	percent float64,
) {
}

func () Info(
	ctx context.Context,
	message string,
) {
}

func () Warn(
	ctx context.Context,
	message string,
) {
}

*/
