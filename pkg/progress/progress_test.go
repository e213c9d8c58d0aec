package progress

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	stage   string
	percent float64
}

type recorder struct {
	progress []record
	infos    []string
	warns    []string
}

func (r *recorder) Progress(_ context.Context, stage string, percent float64) {
	r.progress = append(r.progress, record{stage, percent})
}
func (r *recorder) Info(_ context.Context, message string) { r.infos = append(r.infos, message) }
func (r *recorder) Warn(_ context.Context, message string) { r.warns = append(r.warns, message) }

func TestMonotonic(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	m := NewMonotonic(rec)

	m.Progress(ctx, StageExtractReference, 10)
	m.Progress(ctx, StageExtractComparison, 5)
	m.Progress(ctx, StageCoarse, 45)
	m.Progress(ctx, StageFine, 150)
	m.Progress(ctx, StageFine, math.NaN())
	m.Warn(ctx, "low confidence")

	require.Len(t, rec.progress, 5)
	assert.Equal(t, []record{
		{StageExtractReference, 10},
		{StageExtractComparison, 10},
		{StageCoarse, 45},
		{StageFine, 100},
		{StageFine, 100},
	}, rec.progress)
	assert.Equal(t, []string{"low confidence"}, rec.warns)
	assert.Equal(t, 100.0, m.Last())
}

func TestOrNoop(t *testing.T) {
	ctx := context.Background()
	s := OrNoop(nil)
	assert.NotPanics(t, func() {
		s.Progress(ctx, StageDone, 100)
		s.Info(ctx, "ok")
		Multi{s, Logger{}}.Warn(ctx, "warn")
	})
}
