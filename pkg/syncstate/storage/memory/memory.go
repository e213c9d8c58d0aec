package memory

import (
	"context"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

type Store struct {
	locker sync.Mutex
	states map[string]syncstate.State
	saves  int

	// SaveError, if set, is returned by every Save.
	SaveError error
}

var _ syncstate.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		states: map[string]syncstate.State{},
	}
}

func (s *Store) Save(
	ctx context.Context,
	sessionKey string,
	state syncstate.State,
) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.saves++
	if s.SaveError != nil {
		return s.SaveError
	}
	if state.Confidence != nil {
		confidence := *state.Confidence
		state.Confidence = &confidence
	}
	s.states[sessionKey] = state
	return nil
}

func (s *Store) Load(
	ctx context.Context,
	sessionKey string,
) (syncstate.State, bool, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	state, ok := s.states[sessionKey]
	return state, ok, nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.saves
}
