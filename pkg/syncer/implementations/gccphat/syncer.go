// Package gccphat implements an audio synchronization algorithm using
// Generalized Cross-Correlation with Phase Transform (GCC-PHAT).
//
// The algorithm calculates the time delay between two signals by
// looking at their cross-correlation in the frequency domain. By
// normalizing the magnitude (the Phase Transform), it becomes
// robust against variations in volume and certain types of noise,
// focusing only on the phase information that indicates the delay.
package gccphat

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

const PhaseName = "gcc-phat"

type Syncer struct {
	MinFreq          float64
	MaxFreq          float64
	MaxOffsetSeconds float64
	Progress         progress.Sink
}

var _ syncer.Syncer = (*Syncer)(nil)

// NewSyncer initializes a new one-shot GCC-PHAT syncer.
func NewSyncer(
	maxOffsetSeconds float64,
	progressSink progress.Sink,
) *Syncer {
	return &Syncer{
		// 100Hz to 12000Hz captures most informative audio while filtering
		// out low-frequency rumble and high-frequency digital noise.
		MinFreq:          100,
		MaxFreq:          12000,
		MaxOffsetSeconds: maxOffsetSeconds,
		Progress:         progress.OrNoop(progressSink),
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

		sampleRate := float64(referenceTrack.SampleRate)
		n := FFTSize(len(referenceTrack.Samples), len(comparisonTrack.Samples))
		fref := Spectrum(referenceTrack.Samples, n)
		fcomp := Spectrum(comparisonTrack.Samples, n)

		maxLag := 0
		if s.MaxOffsetSeconds > 0 {
			maxLag = int(math.Ceil(s.MaxOffsetSeconds * sampleRate))
		}
		delay, confidence, err := CrossCorrelate(fref, fcomp, sampleRate, s.MinFreq, s.MaxFreq, maxLag)
		if err != nil {
			return nil, fmt.Errorf("failed to cross-correlate track %d: %w", i, err)
		}
		logger.Debugf(ctx, "GCC-PHAT: track %d: delay %f samples, confidence %f (FFT size %d)", i, delay, confidence, n)

		results[i] = syncer.AnalysisResult{
			OffsetSeconds:   delay / sampleRate,
			Confidence:      confidence,
			CorrelationPeak: confidence,
			Phases: []syncer.PhaseResult{{
				Name:          PhaseName,
				OffsetSamples: int(math.Round(delay)),
				Correlation:   confidence,
			}},
		}
	}
	sink.Progress(ctx, progress.StageDone, 100)
	return results, nil
}
