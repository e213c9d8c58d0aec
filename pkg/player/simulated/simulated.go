// Package simulated provides an in-process player driven by a manual clock.
package simulated

import (
	"math"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/player"
)

type Player struct {
	locker   sync.Mutex
	name     string
	state    player.State
	position float64
	duration float64
	playing  bool

	// speed of the internal clock relative to the one passed to Advance
	rate float64

	handlers      map[player.EventType]map[uint64]func(player.Event)
	nextHandlerID uint64
	seeks         []float64
}

var _ player.Handle = (*Player)(nil)

// New returns a player of media of the given duration. The player is not
// ready until MarkReady is called.
func New(name string, duration float64) *Player {
	return &Player{
		name:     name,
		duration: duration,
		rate:     1,
		handlers: map[player.EventType]map[uint64]func(player.Event){},
	}
}

func (p *Player) String() string {
	return p.name
}

// SetRate makes the player run faster (rate > 1) or slower than the clock,
// simulating a drifting decoder.
func (p *Player) SetRate(rate float64) {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.rate = rate
}

func (p *Player) MarkReady() {
	p.transition(player.StateReady, player.EventReady)
}

func (p *Player) Dispose() {
	p.transition(player.StateDisposed, player.EventDisposed)
}

func (p *Player) transition(state player.State, eventType player.EventType) {
	p.locker.Lock()
	if p.state == state || p.state == player.StateDisposed {
		p.locker.Unlock()
		return
	}
	p.state = state
	if state == player.StateDisposed {
		p.playing = false
	}
	emit := p.prepareEmit(eventType)
	p.locker.Unlock()
	emit()
}

// Advance moves the internal clock by dt seconds of wall-clock time.
func (p *Player) Advance(dt float64) {
	p.locker.Lock()
	if p.state != player.StateReady || !p.playing || dt <= 0 {
		p.locker.Unlock()
		return
	}
	p.position = math.Min(p.position+dt*p.rate, p.duration)
	emitTime := p.prepareEmit(player.EventTimeUpdated)
	var emitPause func()
	if p.position >= p.duration {
		p.playing = false
		emitPause = p.prepareEmit(player.EventPause)
	}
	p.locker.Unlock()
	emitTime()
	if emitPause != nil {
		emitPause()
	}
}

func (p *Player) State() player.State {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.state
}

func (p *Player) CurrentTime() (float64, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	if err := p.state.Err(); err != nil {
		return 0, err
	}
	return p.position, nil
}

func (p *Player) SetCurrentTime(seconds float64) error {
	p.locker.Lock()
	if err := p.state.Err(); err != nil {
		p.locker.Unlock()
		return err
	}
	p.position = math.Max(0, math.Min(seconds, p.duration))
	p.seeks = append(p.seeks, p.position)
	emit := p.prepareEmit(player.EventTimeUpdated)
	p.locker.Unlock()
	emit()
	return nil
}

func (p *Player) Duration() (float64, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	if err := p.state.Err(); err != nil {
		return 0, err
	}
	return p.duration, nil
}

func (p *Player) Play() error {
	return p.setPlaying(true, player.EventPlay)
}

func (p *Player) Pause() error {
	return p.setPlaying(false, player.EventPause)
}

func (p *Player) setPlaying(playing bool, eventType player.EventType) error {
	p.locker.Lock()
	if err := p.state.Err(); err != nil {
		p.locker.Unlock()
		return err
	}
	if p.playing == playing {
		p.locker.Unlock()
		return nil
	}
	p.playing = playing
	emit := p.prepareEmit(eventType)
	p.locker.Unlock()
	emit()
	return nil
}

func (p *Player) IsPlaying() bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.playing
}

// Seeks returns the positions of all seeks made so far.
func (p *Player) Seeks() []float64 {
	p.locker.Lock()
	defer p.locker.Unlock()
	return append([]float64(nil), p.seeks...)
}

// Subscriptions returns the amount of active subscriptions.
func (p *Player) Subscriptions() int {
	p.locker.Lock()
	defer p.locker.Unlock()
	count := 0
	for _, handlers := range p.handlers {
		count += len(handlers)
	}
	return count
}

func (p *Player) Subscribe(
	eventType player.EventType,
	handler func(player.Event),
) (player.Subscription, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.state == player.StateDisposed {
		return nil, player.ErrDisposed
	}
	id := p.nextHandlerID
	p.nextHandlerID++
	if p.handlers[eventType] == nil {
		p.handlers[eventType] = map[uint64]func(player.Event){}
	}
	p.handlers[eventType][id] = handler
	return &subscription{player: p, eventType: eventType, id: id}, nil
}

// prepareEmit must be called with the lock held; the returned function
// must be called without it.
func (p *Player) prepareEmit(eventType player.EventType) func() {
	ev := player.Event{Type: eventType, Time: p.position}
	handlers := make([]func(player.Event), 0, len(p.handlers[eventType]))
	for id := uint64(0); id < p.nextHandlerID; id++ {
		if h, ok := p.handlers[eventType][id]; ok {
			handlers = append(handlers, h)
		}
	}
	return func() {
		for _, h := range handlers {
			h(ev)
		}
	}
}

type subscription struct {
	player    *Player
	eventType player.EventType
	id        uint64
	once      sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.player.locker.Lock()
		defer s.player.locker.Unlock()
		delete(s.player.handlers[s.eventType], s.id)
	})
}
