package syncer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/waveform"
)

var ErrInvalidInput = errors.New("invalid input")

// AnalysisResult is the outcome of aligning one comparison waveform to the
// reference one.
//
// OffsetSeconds is positive when the comparison track started recording
// later than the reference: the comparison time equals the reference time
// plus OffsetSeconds.
type AnalysisResult struct {
	OffsetSeconds   float64
	Confidence      float64 // 0..1
	CorrelationPeak float64 // -1..1
	Phases          []PhaseResult
}

// PhaseResult is the best lag found by a single search pass.
type PhaseResult struct {
	Name          string
	OffsetSamples int
	Correlation   float64
}

// ShiftResult is a single measurement of a streaming syncer.
type ShiftResult struct {
	SampleOffset int64   // Position in the comparison stream
	Delay        float64 // Delay of the comparison relative to the reference, in samples
	Confidence   float64 // Confidence score (0..1)
}

type Syncer interface {
	// CalculateShiftBetween estimates the offset of each comparison
	// track relative to the reference track.
	CalculateShiftBetween(
		ctx context.Context,
		referenceTrack *waveform.Data,
		comparisonTracks ...*waveform.Data,
	) ([]AnalysisResult, error)
}

// ConfidenceFromCorrelation maps a correlation coefficient (-1..1) to 0..1.
func ConfidenceFromCorrelation(corr float64) float64 {
	c := (corr + 1) / 2
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// ValidatePair checks that both waveforms are usable and comparable.
func ValidatePair(reference, comparison *waveform.Data) error {
	if err := reference.Validate(); err != nil {
		return fmt.Errorf("%w: reference track: %v", ErrInvalidInput, err)
	}
	if err := comparison.Validate(); err != nil {
		return fmt.Errorf("%w: comparison track: %v", ErrInvalidInput, err)
	}
	if reference.SampleRate != comparison.SampleRate {
		return fmt.Errorf(
			"%w: sample rates differ: %d != %d",
			ErrInvalidInput, reference.SampleRate, comparison.SampleRate,
		)
	}
	return nil
}

/* for easier copy&paste:

// CalculateShiftBetween estimates the offset of each comparison
// track relative to the reference track.
func () CalculateShiftBetween(
	ctx context.Context,
	referenceTrack *waveform.Data,
	comparisonTracks ...*waveform.Data,
) ([]syncer.AnalysisResult, error) {
}

*/
