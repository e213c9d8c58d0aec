package syncerstream

import (
	"context"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

type SyncerStream interface {
	// PushReference feeds samples of the reference signal.
	PushReference(ctx context.Context, samples []float32) error

	// PushComparison feeds samples of the signal to be synced.
	// Returns detected delays for the specific track.
	PushComparison(ctx context.Context, trackID int, samples []float32) ([]syncer.ShiftResult, error)

	// Lookahead is how many samples of the reference must be available
	// ahead of the comparison for an analysis window to be complete.
	Lookahead() int

	Close() error
}

type Factory interface {
	NewSyncer(sampleRate int) (SyncerStream, error)
}

// Drift is a residual delay measured at a point of the comparison track,
// after the comparison was aligned by the known offset.
type Drift struct {
	AtSeconds    float64
	DelaySeconds float64
	Confidence   float64
}

// VerifyOffset aligns the comparison track by offsetSeconds and streams
// both tracks through s, chunk by chunk, keeping the reference ahead by the
// lookahead of s. The returned drifts are expected to be close to zero if
// the offset is right, and to grow along the recording if the clocks of
// the two recorders run at different speeds.
func VerifyOffset(
	ctx context.Context,
	s SyncerStream,
	reference, comparison *waveform.Data,
	offsetSeconds float64,
	chunkSize int,
) ([]Drift, error) {
	if err := syncer.ValidatePair(reference, comparison); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: got %d", chunkSize)
	}
	rate := float64(reference.SampleRate)

	// comparison(t) = reference(t - offset), so aligned(t) = comparison(t + offset)
	shift := int(math.Round(offsetSeconds * rate))
	aligned := make([]float32, len(reference.Samples))
	for i := range aligned {
		j := i + shift
		if j >= 0 && j < len(comparison.Samples) {
			aligned[i] = comparison.Samples[j]
		}
	}

	var drifts []Drift
	refPos := 0
	for compPos := 0; compPos < len(aligned); compPos += chunkSize {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		for refPos < len(reference.Samples) && refPos < compPos+chunkSize+s.Lookahead() {
			end := min(refPos+chunkSize, len(reference.Samples))
			if err := s.PushReference(ctx, reference.Samples[refPos:end]); err != nil {
				return drifts, fmt.Errorf("unable to push the reference at %d: %w", refPos, err)
			}
			refPos = end
		}

		end := min(compPos+chunkSize, len(aligned))
		results, err := s.PushComparison(ctx, 0, aligned[compPos:end])
		if err != nil {
			return drifts, fmt.Errorf("unable to push the comparison at %d: %w", compPos, err)
		}
		for _, r := range results {
			drifts = append(drifts, Drift{
				AtSeconds:    float64(r.SampleOffset) / rate,
				DelaySeconds: r.Delay / rate,
				Confidence:   r.Confidence,
			})
		}
	}
	return drifts, nil
}
