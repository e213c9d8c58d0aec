package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/player"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
	"github.com/xaionaro-go/observability"
)

var subscribedEvents = []player.EventType{
	player.EventTimeUpdated,
	player.EventReady,
	player.EventFullscreenChanged,
	player.EventPlay,
	player.EventPause,
	player.EventDisposed,
}

type loopEvent struct {
	stream  int
	player  *player.Event
	seek    *seekCall
	control *controlCall
}

type seekCall struct {
	globalTime float64
	result     chan error
}

type controlCall struct {
	playing bool
	result  chan error
}

// Session runs a Coordinator and a SeekCoordinator over a set of players.
// Everything (timers, player notifications, seek requests) is handled by a
// single goroutine, in the order of arrival. Player notification handlers
// only enqueue the events.
type Session struct {
	cfg           Config
	coordinator   *Coordinator
	seeker        *SeekCoordinator
	players       []player.Handle
	subscriptions []player.Subscription

	queueLocker sync.Mutex
	queue       []loopEvent
	wake        chan struct{}

	ticks     chan Tick
	dropped   uint64
	cancelFn  context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(
	ctx context.Context,
	cfg Config,
	holder *syncstate.Holder,
	players ...player.Handle,
) (_ret *Session, _err error) {
	logger.Debugf(ctx, "NewSession(ctx, %d players)", len(players))
	defer func() { logger.Debugf(ctx, "/NewSession(ctx, %d players): %v", len(players), _err) }()

	coordinator, err := NewCoordinator(ctx, cfg, holder, nil, players...)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the clock coordinator: %w", err)
	}
	seeker, err := NewSeekCoordinator(cfg, holder, coordinator, players...)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the seek coordinator: %w", err)
	}

	tickBuffer := cfg.TickBuffer
	if tickBuffer <= 0 {
		tickBuffer = 1
	}
	s := &Session{
		cfg:         cfg,
		coordinator: coordinator,
		seeker:      seeker,
		players:     players,
		wake:        make(chan struct{}, 1),
		ticks:       make(chan Tick, tickBuffer),
		done:        make(chan struct{}),
	}
	defer func() {
		if _err != nil {
			s.unsubscribe()
		}
	}()

	for idx, p := range players {
		for _, eventType := range subscribedEvents {
			sub, err := p.Subscribe(eventType, func(ev player.Event) {
				s.enqueue(loopEvent{stream: idx, player: &ev})
			})
			if err != nil {
				return nil, fmt.Errorf("unable to subscribe to '%s' of player %d: %w", eventType, idx, err)
			}
			s.subscriptions = append(s.subscriptions, sub)
		}
	}

	ctx, cancelFn := context.WithCancel(ctx)
	s.cancelFn = cancelFn
	observability.Go(ctx, func() {
		defer close(s.done)
		s.loop(ctx)
	})
	return s, nil
}

// Ticks returns the results of all the ticks, in order. If the consumer
// is too slow, the oldest ticks are dropped. The channel is closed when
// the session ends.
func (s *Session) Ticks() <-chan Tick {
	return s.ticks
}

// Seek requests a global seek. It must not be called from player event
// handlers.
func (s *Session) Seek(ctx context.Context, globalTime float64) error {
	call := &seekCall{globalTime: globalTime, result: make(chan error, 1)}
	return s.call(ctx, loopEvent{seek: call}, call.result)
}

func (s *Session) Play(ctx context.Context) error {
	call := &controlCall{playing: true, result: make(chan error, 1)}
	return s.call(ctx, loopEvent{control: call}, call.result)
}

func (s *Session) Pause(ctx context.Context) error {
	call := &controlCall{playing: false, result: make(chan error, 1)}
	return s.call(ctx, loopEvent{control: call}, call.result)
}

func (s *Session) call(ctx context.Context, ev loopEvent, result <-chan error) error {
	s.enqueue(ev)
	select {
	case err := <-result:
		return err
	case <-s.done:
		return fmt.Errorf("the session is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the session and releases all the timers and subscriptions.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancelFn()
		<-s.done
	})
	return nil
}

func (s *Session) enqueue(ev loopEvent) {
	s.queueLocker.Lock()
	s.queue = append(s.queue, ev)
	s.queueLocker.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) drain() []loopEvent {
	s.queueLocker.Lock()
	defer s.queueLocker.Unlock()
	events := s.queue
	s.queue = nil
	return events
}

func (s *Session) unsubscribe() {
	for _, sub := range s.subscriptions {
		sub.Unsubscribe()
	}
	s.subscriptions = nil
}

func (s *Session) publish(ctx context.Context, t Tick) {
	select {
	case s.ticks <- t:
		return
	default:
	}
	// drop the oldest one
	select {
	case <-s.ticks:
		s.dropped++
		if s.dropped%100 == 1 {
			logger.Debugf(ctx, "the consumer of ticks is too slow, dropped %d ticks so far", s.dropped)
		}
	default:
	}
	select {
	case s.ticks <- t:
	default:
	}
}

func (s *Session) loop(ctx context.Context) {
	logger.Debugf(ctx, "session loop started")
	defer logger.Debugf(ctx, "session loop finished")

	poll := time.NewTicker(s.cfg.PollInterval)
	var (
		frame     *time.Ticker
		frameC    <-chan time.Time
		debounce  = time.NewTimer(time.Hour)
		debounceC <-chan time.Time
	)
	stopTimer(debounce)
	defer func() {
		poll.Stop()
		if frame != nil {
			frame.Stop()
		}
		debounce.Stop()
		s.unsubscribe()
		close(s.ticks)
	}()

	// the frame ticker runs only while playing
	updateFrameTicker := func() {
		switch {
		case s.coordinator.playing && frame == nil:
			frame = time.NewTicker(s.cfg.FrameInterval)
			frameC = frame.C
		case !s.coordinator.playing && frame != nil:
			frame.Stop()
			frame, frameC = nil, nil
		}
	}
	rearmDebounce := func(now time.Time) {
		due, ok := s.seeker.Due()
		if !ok {
			return
		}
		stopTimer(debounce)
		debounce.Reset(max(due.Sub(now), 0))
		debounceC = debounce.C
	}

	s.publish(ctx, s.coordinator.Poll(ctx, time.Now()))
	updateFrameTicker()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-poll.C:
			s.publish(ctx, s.coordinator.Poll(ctx, now))
		case now := <-frameC:
			s.publish(ctx, s.coordinator.Frame(ctx, now))
		case now := <-debounceC:
			debounceC = nil
			r, ok := s.seeker.Flush(ctx, now)
			if ok && r.Tick != nil {
				s.publish(ctx, *r.Tick)
			}
		case <-s.wake:
			for _, ev := range s.drain() {
				now := time.Now()
				s.handle(ctx, now, ev)
				if ev.seek != nil {
					rearmDebounce(now)
				}
			}
		}
		updateFrameTicker()
	}
}

func (s *Session) handle(ctx context.Context, now time.Time, ev loopEvent) {
	switch {
	case ev.seek != nil:
		ev.seek.result <- s.seeker.Request(ctx, ev.seek.globalTime, now)
	case ev.control != nil:
		ev.control.result <- s.control(ctx, now, ev.control.playing)
	case ev.player != nil:
		s.handlePlayerEvent(ctx, now, ev.stream, *ev.player)
	}
}

func (s *Session) control(ctx context.Context, now time.Time, playing bool) error {
	primary := s.players[0]
	if err := primary.State().Err(); err != nil {
		return fmt.Errorf("unable to control the primary player: %w", err)
	}
	var err error
	if playing {
		err = primary.Play()
	} else {
		err = primary.Pause()
	}
	if err != nil {
		return err
	}
	// the play/pause notification of the primary player will come later,
	// but the secondary ones are to follow immediately
	s.publish(ctx, s.coordinator.PlaybackChanged(ctx, now, playing))
	return nil
}

func (s *Session) handlePlayerEvent(ctx context.Context, now time.Time, stream int, ev player.Event) {
	logger.Tracef(ctx, "player %d: %s at %f", stream, ev.Type, ev.Time)
	switch ev.Type {
	case player.EventTimeUpdated:
		s.publish(ctx, s.coordinator.TimeUpdated(ctx, now, stream))
	case player.EventPlay, player.EventPause:
		if stream != 0 {
			// the secondary players are driven by the coordinator
			return
		}
		playing := ev.Type == player.EventPlay
		if playing == s.coordinator.playing {
			return
		}
		s.publish(ctx, s.coordinator.PlaybackChanged(ctx, now, playing))
	case player.EventDisposed:
		logger.Debugf(ctx, "player %d is disposed", stream)
		s.publish(ctx, s.coordinator.Poll(ctx, now))
	case player.EventReady, player.EventFullscreenChanged:
		s.publish(ctx, s.coordinator.Poll(ctx, now))
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
