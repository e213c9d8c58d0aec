package player

import (
	"errors"
	"fmt"
)

var (
	ErrDisposed = errors.New("the player is disposed")
	ErrNotReady = errors.New("the player is not ready")
)

type State int

const (
	StateNotReady = State(iota)
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}

// Err returns the error an operation would fail with in state s.
func (s State) Err() error {
	switch s {
	case StateReady:
		return nil
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotReady
	}
}

type EventType string

const (
	EventTimeUpdated       = EventType("time-updated")
	EventReady             = EventType("ready")
	EventFullscreenChanged = EventType("fullscreen-changed")
	EventPlay              = EventType("play")
	EventPause             = EventType("pause")
	EventDisposed          = EventType("disposed")
)

type Event struct {
	Type EventType

	// Time is the playback position at the moment of the event.
	Time float64
}

type Subscription interface {
	Unsubscribe()
}

// Handle is a media player hosted outside of this module. The module never
// creates nor destroys players, and any of them may get disposed at any
// moment: every call site checks State() first and tolerates ErrDisposed
// anyway.
type Handle interface {
	State() State

	CurrentTime() (float64, error)
	SetCurrentTime(seconds float64) error
	Duration() (float64, error)

	Play() error
	Pause() error
	IsPlaying() bool

	// Subscribe registers a handler of events of type 'eventType'. Handlers
	// may be called from any goroutine, and must return quickly.
	Subscribe(eventType EventType, handler func(Event)) (Subscription, error)
}

/* for easier copy&paste:

func () State() player.State {
}

func () CurrentTime() (float64, error) {
}

func () SetCurrentTime(seconds float64) error {
}

func () Duration() (float64, error) {
}

func () Play() error {
}

func () Pause() error {
}

func () IsPlaying() bool {
}

func () Subscribe(
	eventType player.EventType,
	handler func(player.Event),
) (player.Subscription, error) {
}

*/
