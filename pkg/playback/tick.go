package playback

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

type TickSource int

const (
	TickSourceFrame = TickSource(iota)
	TickSourcePoll
	TickSourceTimeUpdate
	TickSourcePlayback
	TickSourceSeek
)

func (s TickSource) String() string {
	switch s {
	case TickSourceFrame:
		return "frame"
	case TickSourcePoll:
		return "poll"
	case TickSourceTimeUpdate:
		return "time-update"
	case TickSourcePlayback:
		return "playback"
	case TickSourceSeek:
		return "seek"
	default:
		return fmt.Sprintf("unknown_tick_source_%d", int(s))
	}
}

type Phase int

const (
	PhaseActive = Phase(iota)
	PhasePreRoll
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhasePreRoll:
		return "pre-roll"
	default:
		return fmt.Sprintf("unknown_phase_%d", int(p))
	}
}

// Tick is the immutable result of a single pass of the coordinator.
// Index 0 of the slices is the primary stream.
type Tick struct {
	At         time.Time
	Source     TickSource
	State      syncstate.State
	GlobalTime float64
	Playing    bool
	Targets    []float64
	Blocked    []bool
	Corrected  []bool
	Skipped    []bool
}

func (t Tick) String() string {
	return fmt.Sprintf("%s@%.3f targets:%v blocked:%v corrected:%v", t.Source, t.GlobalTime, t.Targets, t.Blocked, t.Corrected)
}
