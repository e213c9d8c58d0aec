package syncstate

import (
	"errors"
	"fmt"
	"math"

	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

var ErrInvalidOffset = errors.New("invalid offset")

// State is the offset between the primary stream (A) and the secondary
// stream (B). A positive OffsetSeconds means B started recording later than
// A: B's playback time is the global time plus OffsetSeconds.
//
// A State is a value: it is never modified, only replaced.
type State struct {
	OffsetSeconds float64 `json:"syncOffset"`

	// IsAnalyzed tells whether OffsetSeconds is in effect (was determined
	// by the analysis or set by the operator) rather than being the default.
	IsAnalyzed bool `json:"isAnalyzed"`

	// Confidence is set only if the offset was estimated by the analysis
	// (or explicitly reset to zero).
	Confidence *float64 `json:"confidenceScore"`
}

func Initial() State {
	return State{}
}

func FromAnalysis(r syncer.AnalysisResult) State {
	confidence := r.Confidence
	return State{
		OffsetSeconds: r.OffsetSeconds,
		IsAnalyzed:    true,
		Confidence:    &confidence,
	}
}

func FromManualOffset(seconds float64) (State, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidOffset, seconds)
	}
	return State{
		OffsetSeconds: seconds,
		IsAnalyzed:    true,
	}, nil
}

// FromLiveDiff derives the offset from the positions the operator scrubbed
// both streams to, so that they show the same moment.
func FromLiveDiff(timeA, timeB float64) (State, error) {
	return FromManualOffset(timeB - timeA)
}

func Reset() State {
	var zero float64
	return State{
		Confidence: &zero,
	}
}

// UsesPreRoll tells whether the secondary stream has to wait for the global
// time to reach -OffsetSeconds before it may start.
func (s State) UsesPreRoll() bool {
	return s.IsAnalyzed && s.OffsetSeconds < 0
}

// MinGlobalTime is the earliest global time a seek may target.
func (s State) MinGlobalTime() float64 {
	if s.UsesPreRoll() {
		return s.OffsetSeconds
	}
	return 0
}

func (s State) String() string {
	confidence := "n/a"
	if s.Confidence != nil {
		confidence = fmt.Sprintf("%.3f", *s.Confidence)
	}
	return fmt.Sprintf("offset:%.4fs analyzed:%v confidence:%s", s.OffsetSeconds, s.IsAnalyzed, confidence)
}

func (s State) Equal(other State) bool {
	if s.OffsetSeconds != other.OffsetSeconds || s.IsAnalyzed != other.IsAnalyzed {
		return false
	}
	switch {
	case s.Confidence == nil && other.Confidence == nil:
		return true
	case s.Confidence == nil || other.Confidence == nil:
		return false
	}
	return *s.Confidence == *other.Confidence
}
