package syncstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStore struct {
	saveErrs []error
	saved    []State
}

func (s *scriptedStore) Save(_ context.Context, _ string, state State) error {
	var err error
	if len(s.saveErrs) > 0 {
		err, s.saveErrs = s.saveErrs[0], s.saveErrs[1:]
	}
	if err == nil {
		s.saved = append(s.saved, state)
	}
	return err
}

func (s *scriptedStore) Load(context.Context, string) (State, bool, error) {
	return State{}, false, nil
}

func TestManager_StaleStateIsNotSavedAfterANewerOne(t *testing.T) {
	ctx := context.Background()
	older, err := FromManualOffset(1)
	require.NoError(t, err)
	newer, err := FromManualOffset(2)
	require.NoError(t, err)

	t.Run("newer failed", func(t *testing.T) {
		store := &scriptedStore{saveErrs: []error{errors.New("disk is full")}}
		m := NewManager(nil, store, "session")

		// the goroutine of the newer version happens to run first
		m.persist(ctx, 2, newer)
		m.persist(ctx, 1, older)
		assert.Empty(t, store.saved)

		m.persist(ctx, 3, newer)
		require.Len(t, store.saved, 1)
		assert.Equal(t, 2.0, store.saved[0].OffsetSeconds)
	})

	t.Run("newer saved", func(t *testing.T) {
		store := &scriptedStore{}
		m := NewManager(nil, store, "session")
		m.persist(ctx, 2, newer)
		m.persist(ctx, 1, older)
		require.Len(t, store.saved, 1)
		assert.Equal(t, 2.0, store.saved[0].OffsetSeconds)
	})
}
