package playback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/player"
	"github.com/xaionaro-go/audiosync/pkg/player/simulated"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

func testSessionConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameInterval = 2 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SeekDebounce = 10 * time.Millisecond
	cfg.QuietWindow = 20 * time.Millisecond
	cfg.TickBuffer = 4
	return cfg
}

func waitTick(t *testing.T, s *Session, match func(Tick) bool) Tick {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tick, ok := <-s.Ticks():
			require.True(t, ok, "the session is closed")
			if match(tick) {
				return tick
			}
		case <-deadline:
			t.Fatal("timed out")
		}
	}
}

func TestSession_Teardown(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(syncstate.Initial())

	s, err := NewSession(ctx, testSessionConfig(), holder, handles...)
	require.NoError(t, err)
	for _, p := range players {
		assert.Equal(t, len(subscribedEvents), p.Subscriptions())
	}
	waitTick(t, s, func(Tick) bool { return true })

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	for _, p := range players {
		assert.Zero(t, p.Subscriptions())
	}
	for range s.Ticks() {
	}
	assert.Error(t, s.Seek(ctx, 1))
}

func TestSession_ParentContextCancelled(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	players, handles := newReadyPlayers(60, 60)
	s, err := NewSession(ctx, testSessionConfig(), syncstate.NewHolder(syncstate.Initial()), handles...)
	require.NoError(t, err)

	cancelFn()
	for range s.Ticks() {
	}
	for _, p := range players {
		assert.Zero(t, p.Subscriptions())
	}
	require.NoError(t, s.Close())
}

func TestSession_SetupFailureReleasesSubscriptions(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60, 60, 60)
	players[2].Dispose()

	_, err := NewSession(ctx, testSessionConfig(), syncstate.NewHolder(syncstate.Initial()), handles...)
	require.ErrorIs(t, err, player.ErrDisposed)
	for _, p := range players {
		assert.Zero(t, p.Subscriptions())
	}
}

func TestSession_Seek(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, -5))
	cfg := testSessionConfig()
	cfg.SeekDebounce = 200 * time.Millisecond
	s, err := NewSession(ctx, cfg, holder, handles...)
	require.NoError(t, err)
	defer s.Close()

	require.ErrorIs(t, s.Seek(ctx, math.NaN()), ErrInvalidSeekValue)
	require.NoError(t, s.Seek(ctx, 10))
	require.NoError(t, s.Seek(ctx, -3))

	tick := waitTick(t, s, func(tick Tick) bool { return tick.Source == TickSourceSeek })
	assert.Equal(t, -5.0, tick.GlobalTime)
	assert.Equal(t, []float64{0, 0}, tick.Targets)
	assert.True(t, tick.Blocked[1])
	assert.Equal(t, []float64{0}, players[0].Seeks(), "the seeks are coalesced")
}

func TestSession_PlayPause(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, 2))
	s, err := NewSession(ctx, testSessionConfig(), holder, handles...)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Play(ctx))
	assert.True(t, players[0].IsPlaying())
	assert.True(t, players[1].IsPlaying())
	actual, err := players[1].CurrentTime()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, actual, 0.5)

	waitTick(t, s, func(tick Tick) bool { return tick.Source == TickSourceFrame })

	require.NoError(t, s.Pause(ctx))
	assert.False(t, players[0].IsPlaying())
	assert.False(t, players[1].IsPlaying())
}

func TestSession_FollowsThePrimaryPlayer(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, 1.5))
	s, err := NewSession(ctx, testSessionConfig(), holder, handles...)
	require.NoError(t, err)
	defer s.Close()

	// the playback is started by the user directly on the primary player
	require.NoError(t, players[0].Play())
	require.Eventually(t, players[1].IsPlaying, 5*time.Second, time.Millisecond)

	players[0].Advance(10)
	require.Eventually(t, func() bool {
		actual, err := players[1].CurrentTime()
		return err == nil && math.Abs(actual-11.5) < 0.5
	}, 5*time.Second, time.Millisecond)
}

func TestSession_NotReadyPlayer(t *testing.T) {
	ctx := context.Background()
	players, handles := newReadyPlayers(60)
	late := simulated.New("late", 60)
	handles = append(handles, late)
	holder := syncstate.NewHolder(manualState(t, 1))
	s, err := NewSession(ctx, testSessionConfig(), holder, handles...)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, players[0].SetCurrentTime(4))
	tick := waitTick(t, s, func(tick Tick) bool { return tick.GlobalTime == 4 })
	assert.True(t, tick.Skipped[1])

	late.MarkReady()
	require.Eventually(t, func() bool {
		actual, err := late.CurrentTime()
		return err == nil && actual == 5
	}, 5*time.Second, time.Millisecond)
}
