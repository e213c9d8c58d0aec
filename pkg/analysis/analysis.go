// Package analysis runs the whole offset analysis of two sources: the
// extraction of both waveforms, the offset estimation and (optionally) the
// verification of the offset along the recordings.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/progress"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncerstream"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

// UserFacingMessage is what the operator is shown if the analysis fails.
const UserFacingMessage = "audio sync failed — verify both sources contain an audio track"

const (
	DefaultLowConfidence   = 0.6
	DefaultVerifyChunkSize = 4096
)

var ErrFailed = errors.New(UserFacingMessage)

// Error is returned by a failed analysis. It matches ErrFailed and
// whatever the underlying error matches.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s: %v)", UserFacingMessage, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrFailed
}

// SyncerFactory creates the estimator for a single analysis. The estimator
// is expected to report its progress to 'sink'.
type SyncerFactory func(sink progress.Sink) (syncer.Syncer, error)

type Analyzer struct {
	Extractor waveform.Extractor
	NewSyncer SyncerFactory
	Progress  progress.Sink

	// Verifier enables the verification of the estimated offset along the
	// whole recordings (if not nil).
	Verifier        syncerstream.Factory
	VerifyChunkSize int

	// LowConfidence is the confidence below which the operator is warned.
	LowConfidence float64
}

func New(
	extractor waveform.Extractor,
	newSyncer SyncerFactory,
	progressSink progress.Sink,
) *Analyzer {
	return &Analyzer{
		Extractor:       extractor,
		NewSyncer:       newSyncer,
		Progress:        progressSink,
		VerifyChunkSize: DefaultVerifyChunkSize,
		LowConfidence:   DefaultLowConfidence,
	}
}

type Result struct {
	Reference  *waveform.Data
	Comparison *waveform.Data
	Analysis   syncer.AnalysisResult

	// Drifts is set only if the verification is enabled and succeeded.
	Drifts []syncerstream.Drift
}

// Run analyzes the offset of sourceB relative to sourceA.
func (a *Analyzer) Run(
	ctx context.Context,
	sourceA, sourceB string,
) (_ret *Result, _err error) {
	logger.Debugf(ctx, "Run(ctx, '%s', '%s')", sourceA, sourceB)
	defer func() { logger.Debugf(ctx, "/Run(ctx, '%s', '%s'): %v", sourceA, sourceB, _err) }()

	sink := progress.NewMonotonic(progress.OrNoop(a.Progress))
	defer func() {
		if _err != nil {
			sink.Warn(ctx, _err.Error())
		}
	}()

	if a.Extractor == nil || a.NewSyncer == nil {
		return nil, &Error{Stage: "initialization", Err: fmt.Errorf("the extractor and the syncer factory are mandatory")}
	}

	sink.Progress(ctx, progress.StageExtractReference, 0)
	reference, err := a.Extractor.Extract(ctx, sourceA)
	if err != nil {
		return nil, &Error{Stage: progress.StageExtractReference, Err: err}
	}
	sink.Progress(ctx, progress.StageExtractComparison, 20)
	comparison, err := a.Extractor.Extract(ctx, sourceB)
	if err != nil {
		return nil, &Error{Stage: progress.StageExtractComparison, Err: err}
	}
	sink.Progress(ctx, progress.StageCoarse, 40)

	s, err := a.NewSyncer(sink)
	if err != nil {
		return nil, &Error{Stage: "initialization", Err: err}
	}
	results, err := s.CalculateShiftBetween(ctx, reference, comparison)
	if err != nil {
		return nil, &Error{Stage: "estimation", Err: err}
	}
	if len(results) != 1 {
		return nil, &Error{Stage: "estimation", Err: fmt.Errorf("expected 1 result, got %d", len(results))}
	}
	r := &Result{
		Reference:  reference,
		Comparison: comparison,
		Analysis:   results[0],
	}
	sink.Progress(ctx, progress.StageDone, 100)
	sink.Info(ctx, fmt.Sprintf("offset: %.3fs, confidence: %.0f%%", r.Analysis.OffsetSeconds, r.Analysis.Confidence*100))
	if r.Analysis.Confidence < a.LowConfidence {
		sink.Warn(ctx, fmt.Sprintf("the confidence is low (%.0f%%), consider adjusting the offset manually", r.Analysis.Confidence*100))
	}

	if a.Verifier != nil {
		drifts, err := a.verify(ctx, r)
		if err != nil {
			// the verification is advisory
			logger.Warnf(ctx, "unable to verify the offset: %v", err)
			sink.Warn(ctx, fmt.Sprintf("unable to verify the offset: %v", err))
		} else {
			r.Drifts = drifts
		}
	}
	return r, nil
}

// RunAndApply runs the analysis and, only if it succeeded, makes its
// result the live sync state.
func (a *Analyzer) RunAndApply(
	ctx context.Context,
	manager *syncstate.Manager,
	sourceA, sourceB string,
) (*Result, syncstate.State, error) {
	r, err := a.Run(ctx, sourceA, sourceB)
	if err != nil {
		return nil, manager.Holder.Load(), err
	}
	return r, manager.ApplyAnalysis(ctx, r.Analysis), nil
}

func (a *Analyzer) verify(ctx context.Context, r *Result) (_ []syncerstream.Drift, _err error) {
	s, err := a.Verifier.NewSyncer(r.Reference.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the streaming syncer: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Debugf(ctx, "unable to close the streaming syncer: %v", err)
		}
	}()
	chunkSize := a.VerifyChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultVerifyChunkSize
	}
	return syncerstream.VerifyOffset(ctx, s, r.Reference, r.Comparison, r.Analysis.OffsetSeconds, chunkSize)
}
