// Package fft implements an audio synchronization algorithm which finds the
// maximum of the plain cross-correlation of two tracks computed in the
// frequency domain. The found lag is then scored with the Pearson
// correlation coefficient, so the confidence is comparable with the one of
// the pearson syncer.
package fft

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/pearson"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

const PhaseName = "fft"

type Syncer struct {
	MaxOffsetSeconds      float64
	AnalysisLengthSeconds float64
	Progress              progress.Sink
}

var _ syncer.Syncer = (*Syncer)(nil)

func NewSyncer(
	maxOffsetSeconds float64,
	analysisLengthSeconds float64,
	progressSink progress.Sink,
) *Syncer {
	return &Syncer{
		MaxOffsetSeconds:      maxOffsetSeconds,
		AnalysisLengthSeconds: analysisLengthSeconds,
		Progress:              progress.OrNoop(progressSink),
	}
}

func (s *Syncer) CalculateShiftBetween(
	ctx context.Context,
	referenceTrack *waveform.Data,
	comparisonTracks ...*waveform.Data,
) ([]syncer.AnalysisResult, error) {
	sink := progress.OrNoop(s.Progress)
	results := make([]syncer.AnalysisResult, len(comparisonTracks))
	for i, comparisonTrack := range comparisonTracks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := syncer.ValidatePair(referenceTrack, comparisonTrack); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		sink.Progress(ctx, progress.StageCoarse, 40+60*float64(i)/float64(len(comparisonTracks)))

		r, err := s.estimate(ctx, referenceTrack, comparisonTrack)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		results[i] = r
	}
	sink.Progress(ctx, progress.StageDone, 100)
	return results, nil
}

func (s *Syncer) estimate(
	ctx context.Context,
	a, b *waveform.Data,
) (syncer.AnalysisResult, error) {
	rate := float64(a.SampleRate)
	n := 1
	for n < len(a.Samples)+len(b.Samples)-1 {
		n <<= 1
	}

	fa := centered(a.Samples, n)
	fb := centered(b.Samples, n)
	if err := fourier.Forward(fa); err != nil {
		return syncer.AnalysisResult{}, fmt.Errorf("unable to transform the reference track: %w", err)
	}
	if err := fourier.Forward(fb); err != nil {
		return syncer.AnalysisResult{}, fmt.Errorf("unable to transform the comparison track: %w", err)
	}
	for i := range fa {
		fa[i] = cmplx.Conj(fa[i]) * fb[i]
	}
	if err := fourier.Inverse(fa); err != nil {
		return syncer.AnalysisResult{}, fmt.Errorf("unable to transform the cross-spectrum back: %w", err)
	}

	maxLag := n / 2
	if s.MaxOffsetSeconds > 0 {
		maxLag = min(maxLag, int(math.Ceil(s.MaxOffsetSeconds*rate)))
	}

	// xcorr[k] = sum(a[t] * b[t+k]), so a peak at k means b(t) = a(t-k)
	bestLag, bestVal := 0, math.Inf(-1)
	for i := range fa {
		lag := i
		if lag > n/2 {
			lag -= n
		}
		if lag > maxLag || lag < -maxLag {
			continue
		}
		if v := real(fa[i]); v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}

	window := len(a.Samples)
	if s.AnalysisLengthSeconds > 0 {
		window = int(math.Round(s.AnalysisLengthSeconds * rate))
	}
	corr := pearson.Correlate(a.Samples, b.Samples, bestLag, window)
	logger.Debugf(ctx, "FFT cross-correlation: lag %d samples, Pearson %f (FFT size %d)", bestLag, corr, n)

	return syncer.AnalysisResult{
		OffsetSeconds:   float64(bestLag) / rate,
		Confidence:      syncer.ConfidenceFromCorrelation(corr),
		CorrelationPeak: corr,
		Phases: []syncer.PhaseResult{{
			Name:          PhaseName,
			OffsetSamples: bestLag,
			Correlation:   corr,
		}},
	}, nil
}

// centered returns the samples without their mean, zero-padded to n.
func centered(samples []float32, n int) []complex128 {
	var mean float64
	for _, v := range samples {
		mean += float64(v)
	}
	mean /= float64(len(samples))

	out := make([]complex128, n)
	for i, v := range samples {
		out[i] = complex(float64(v)-mean, 0)
	}
	return out
}
