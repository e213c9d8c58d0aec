package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/player"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

var ErrInvalidSeekValue = errors.New("invalid seek value")

type seekRequest struct {
	globalTime float64
	at         time.Time
}

// SeekResult describes an applied seek. Targets are the logical positions
// of the streams: the primary one may be negative if the global time is
// before its beginning; the players themselves are never seeked below zero.
type SeekResult struct {
	Requested float64
	Clamped   float64
	Targets   []float64
	Skipped   []bool

	// Tick is the coordinator tick made right after the seek (if the
	// SeekCoordinator is attached to a Coordinator).
	Tick *Tick
}

// SeekCoordinator moves all the players to a requested global time.
// Requests arriving within the debounce window of each other are
// coalesced, and only the last one is applied.
//
// SeekCoordinator is not safe for concurrent use.
type SeekCoordinator struct {
	cfg         Config
	holder      *syncstate.Holder
	players     []player.Handle
	guard       *Guard
	coordinator *Coordinator

	pending *seekRequest
}

func NewSeekCoordinator(
	cfg Config,
	holder *syncstate.Holder,
	coordinator *Coordinator,
	players ...player.Handle,
) (*SeekCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if holder == nil {
		return nil, fmt.Errorf("sync state holder is mandatory")
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("at least one player is required")
	}
	guard := &Guard{}
	if coordinator != nil {
		guard = coordinator.Guard()
	}
	return &SeekCoordinator{
		cfg:         cfg,
		holder:      holder,
		players:     players,
		guard:       guard,
		coordinator: coordinator,
	}, nil
}

// Request validates the global time and schedules the seek. A previously
// scheduled (but not applied yet) seek is replaced. An invalid value is
// rejected and the previously scheduled seek is retained.
func (s *SeekCoordinator) Request(ctx context.Context, globalTime float64, now time.Time) error {
	if err := s.validate(globalTime); err != nil {
		logger.Warnf(ctx, "rejecting the seek to %v: %v", globalTime, err)
		return err
	}
	if s.pending != nil {
		logger.Debugf(ctx, "seek to %f replaces the pending seek to %f", globalTime, s.pending.globalTime)
	}
	s.pending = &seekRequest{globalTime: globalTime, at: now}
	return nil
}

func (s *SeekCoordinator) validate(globalTime float64) error {
	if math.IsNaN(globalTime) || math.IsInf(globalTime, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSeekValue, globalTime)
	}
	end, ok := s.knownEnd(s.holder.Load())
	if ok && globalTime > end {
		return fmt.Errorf("%w: %v is beyond the end of all the streams (%v)", ErrInvalidSeekValue, globalTime, end)
	}
	return nil
}

// knownEnd returns the global time at which the last of the streams ends.
func (s *SeekCoordinator) knownEnd(state syncstate.State) (float64, bool) {
	end, ok := math.Inf(-1), false
	for i, p := range s.players {
		if p.State() != player.StateReady {
			continue
		}
		duration, err := p.Duration()
		if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
			continue
		}
		if i > 0 {
			duration -= state.OffsetSeconds
		}
		end, ok = math.Max(end, duration), true
	}
	return end, ok
}

// Due returns the moment the pending seek should be applied at.
func (s *SeekCoordinator) Due() (time.Time, bool) {
	if s.pending == nil {
		return time.Time{}, false
	}
	return s.pending.at.Add(s.cfg.SeekDebounce), true
}

// Flush applies the pending seek (if any), and holds the guard for the
// quiet window.
func (s *SeekCoordinator) Flush(ctx context.Context, now time.Time) (SeekResult, bool) {
	if s.pending == nil {
		return SeekResult{}, false
	}
	req := *s.pending
	s.pending = nil
	return s.apply(ctx, req.globalTime, now), true
}

func (s *SeekCoordinator) apply(ctx context.Context, globalTime float64, now time.Time) SeekResult {
	state := s.holder.Load()
	// any request before the start snaps to the earliest allowed time,
	// which is the pre-roll of the primary stream for a negative offset
	clamped := math.Max(globalTime, state.MinGlobalTime())
	if globalTime < 0 {
		clamped = state.MinGlobalTime()
	}

	r := SeekResult{
		Requested: globalTime,
		Clamped:   clamped,
		Targets:   make([]float64, len(s.players)),
		Skipped:   make([]bool, len(s.players)),
	}
	r.Targets[0] = clamped
	for i := 1; i < len(s.players); i++ {
		if state.IsAnalyzed {
			r.Targets[i] = math.Max(0, clamped+state.OffsetSeconds)
		} else {
			r.Targets[i] = math.Max(0, clamped)
		}
	}

	s.guard.Hold(now, s.cfg.QuietWindow)
	for i, p := range s.players {
		if p.State() != player.StateReady {
			r.Skipped[i] = true
			continue
		}
		if err := p.SetCurrentTime(math.Max(0, r.Targets[i])); err != nil {
			logger.Debugf(ctx, "unable to seek stream %d: %v", i, err)
			r.Skipped[i] = true
		}
	}
	logger.Debugf(ctx, "seek to %f (requested %f): %v", clamped, globalTime, r.Targets)

	if s.coordinator != nil {
		tick := s.coordinator.SeekApplied(ctx, now, clamped)
		r.Tick = &tick
	}
	return r
}
