package playback

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/player"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

// Coordinator computes the target time of every stream and keeps the
// secondary players (index > 0) close to them. The primary player
// (index 0) is the clock.
//
// Coordinator is not safe for concurrent use; it is driven by one
// goroutine (see Session), or directly by a test.
type Coordinator struct {
	cfg     Config
	holder  *syncstate.Holder
	players []player.Handle
	guard   *Guard

	state   syncstate.State
	version uint64
	phases  []Phase

	globalTime    float64
	playing       bool
	lastFrame     time.Time
	postSeekCheck bool
}

func NewCoordinator(
	ctx context.Context,
	cfg Config,
	holder *syncstate.Holder,
	guard *Guard,
	players ...player.Handle,
) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if holder == nil {
		return nil, fmt.Errorf("sync state holder is mandatory")
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("at least one player is required")
	}
	if guard == nil {
		guard = &Guard{}
	}
	c := &Coordinator{
		cfg:     cfg,
		holder:  holder,
		players: players,
		guard:   guard,
		phases:  make([]Phase, len(players)),
	}
	state, version := holder.Snapshot()
	c.rebuild(ctx, state, version)
	return c, nil
}

func (c *Coordinator) Guard() *Guard {
	return c.guard
}

func (c *Coordinator) Phases() []Phase {
	return append([]Phase(nil), c.phases...)
}

func (c *Coordinator) GlobalTime() float64 {
	return c.globalTime
}

func (c *Coordinator) rebuild(ctx context.Context, state syncstate.State, version uint64) {
	c.state = state
	c.version = version
	c.resetPhases()
	logger.Debugf(ctx, "coordinator: sync state v%d: %s; phases: %v", version, state, c.phases)
}

func (c *Coordinator) resetPhases() {
	for i := range c.phases {
		c.phases[i] = PhaseActive
		if i > 0 && c.state.UsesPreRoll() {
			c.phases[i] = PhasePreRoll
		}
	}
}

// refresh picks up a new State if it was replaced since the last tick.
func (c *Coordinator) refresh(ctx context.Context) {
	state, version := c.holder.Snapshot()
	if version != c.version {
		c.rebuild(ctx, state, version)
	}
}

// Frame advances the global time by the wall-clock time passed since the
// previous frame and checks the drift with the tightest threshold.
func (c *Coordinator) Frame(ctx context.Context, now time.Time) Tick {
	c.refresh(ctx)
	if c.playing {
		if !c.lastFrame.IsZero() {
			if dt := now.Sub(c.lastFrame).Seconds(); dt > 0 {
				c.globalTime += dt
			}
		}
		c.lastFrame = now
	}
	return c.tick(ctx, now, TickSourceFrame, c.cfg.FrameThreshold)
}

// Poll takes the global time from the primary player and checks the drift
// with the loose threshold.
func (c *Coordinator) Poll(ctx context.Context, now time.Time) Tick {
	c.refresh(ctx)
	c.readPrimary(ctx, now)
	if primary := c.players[0]; primary.State() == player.StateReady {
		if playing := primary.IsPlaying(); playing != c.playing {
			logger.Debugf(ctx, "coordinator: the primary player is playing:%v, but expected playing:%v", playing, c.playing)
			c.setPlaying(now, playing)
		}
	}
	return c.tick(ctx, now, TickSourcePoll, c.cfg.PollThreshold)
}

// TimeUpdated handles a time report of player 'stream'.
func (c *Coordinator) TimeUpdated(ctx context.Context, now time.Time, stream int) Tick {
	c.refresh(ctx)
	if stream == 0 {
		c.readPrimary(ctx, now)
	}
	return c.tick(ctx, now, TickSourceTimeUpdate, c.cfg.PollThreshold)
}

// PlaybackChanged handles play/pause of the primary player.
func (c *Coordinator) PlaybackChanged(ctx context.Context, now time.Time, playing bool) Tick {
	c.refresh(ctx)
	c.setPlaying(now, playing)
	c.readPrimary(ctx, now)
	return c.tick(ctx, now, TickSourcePlayback, c.cfg.PollThreshold)
}

// SeekApplied is called after all the players were seeked to 'globalTime'.
// It starts a new playback session: the secondary streams get pre-rolled
// again (if needed), and the first drift check after the quiet window uses
// the post-seek threshold.
func (c *Coordinator) SeekApplied(ctx context.Context, now time.Time, globalTime float64) Tick {
	c.refresh(ctx)
	c.globalTime = globalTime
	c.lastFrame = time.Time{}
	if c.playing {
		c.lastFrame = now
	}
	c.resetPhases()
	c.postSeekCheck = true
	return c.tick(ctx, now, TickSourceSeek, c.cfg.PostSeekThreshold)
}

func (c *Coordinator) setPlaying(now time.Time, playing bool) {
	c.playing = playing
	c.lastFrame = time.Time{}
	if playing {
		c.lastFrame = now
	}
}

func (c *Coordinator) readPrimary(ctx context.Context, now time.Time) {
	primary := c.players[0]
	if primary.State() != player.StateReady {
		return
	}
	t, err := primary.CurrentTime()
	if err != nil {
		logger.Debugf(ctx, "coordinator: unable to get the time of the primary player: %v", err)
		return
	}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return
	}
	if t == 0 && c.globalTime < 0 {
		// the primary player waits at the beginning until the global time reaches it
		return
	}
	c.globalTime = t
	if c.playing {
		c.lastFrame = now
	}
}

func (c *Coordinator) tick(
	ctx context.Context,
	now time.Time,
	source TickSource,
	threshold float64,
) Tick {
	n := len(c.players)
	t := Tick{
		At:         now,
		Source:     source,
		State:      c.state,
		GlobalTime: c.globalTime,
		Playing:    c.playing,
		Targets:    make([]float64, n),
		Blocked:    make([]bool, n),
		Corrected:  make([]bool, n),
		Skipped:    make([]bool, n),
	}

	held := c.guard.Held(now)
	if !held && c.postSeekCheck {
		threshold = c.cfg.PostSeekThreshold
		c.postSeekCheck = false
	}

	offset := c.state.OffsetSeconds
	t.Targets[0] = math.Max(0, c.globalTime)
	if c.players[0].State() != player.StateReady {
		t.Skipped[0] = true
	}
	anyCorrected := false
	for i := 1; i < n; i++ {
		t.Targets[i] = math.Max(0, c.globalTime+offset)

		if c.phases[i] == PhasePreRoll && c.globalTime >= math.Abs(offset)-c.cfg.PreRollEpsilon {
			c.phases[i] = PhaseActive
			logger.Debugf(ctx, "coordinator: stream %d: pre-roll is over at %f", i, c.globalTime)
		}
		t.Blocked[i] = c.phases[i] == PhasePreRoll

		p := c.players[i]
		if p.State() != player.StateReady {
			t.Skipped[i] = true
			continue
		}

		var (
			corrected bool
			err       error
		)
		if t.Blocked[i] {
			corrected, err = c.holdBlocked(p, held, threshold)
		} else {
			corrected, err = c.follow(p, t.Targets[i], held, threshold)
		}
		if err != nil {
			logger.Debugf(ctx, "coordinator: stream %d is skipped for this tick: %v", i, err)
			t.Skipped[i] = true
			continue
		}
		if corrected {
			logger.Tracef(ctx, "coordinator: stream %d corrected to %f (%s tick)", i, t.Targets[i], source)
			t.Corrected[i] = true
			anyCorrected = true
		}
	}
	if anyCorrected {
		c.guard.Hold(now, c.cfg.QuietWindow)
	}
	return t
}

// holdBlocked keeps a pre-rolled player paused at the beginning.
func (c *Coordinator) holdBlocked(p player.Handle, held bool, threshold float64) (bool, error) {
	if p.IsPlaying() {
		if err := p.Pause(); err != nil {
			return false, err
		}
	}
	if held {
		return false, nil
	}
	actual, err := p.CurrentTime()
	if err != nil {
		return false, err
	}
	if actual <= threshold {
		return false, nil
	}
	return true, p.SetCurrentTime(0)
}

// follow keeps an active player at its target time and in the same
// playing state as the primary one.
func (c *Coordinator) follow(
	p player.Handle,
	target float64,
	held bool,
	threshold float64,
) (bool, error) {
	corrected := false
	if !held {
		actual, err := p.CurrentTime()
		if err != nil {
			return false, err
		}
		if math.Abs(actual-target) > threshold {
			if err := p.SetCurrentTime(target); err != nil {
				return false, err
			}
			corrected = true
		}
	}

	switch playing := p.IsPlaying(); {
	case c.playing && !playing:
		if err := p.Play(); err != nil {
			return corrected, err
		}
	case !c.playing && playing:
		if err := p.Pause(); err != nil {
			return corrected, err
		}
	}
	return corrected, nil
}
