package playback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

func TestSeekCoordinator_ClampsToTheEarliestGlobalTime(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, -5))
	c, err := NewCoordinator(ctx, DefaultConfig(), holder, nil, handles...)
	require.NoError(t, err)
	seeker, err := NewSeekCoordinator(DefaultConfig(), holder, c, handles...)
	require.NoError(t, err)

	require.NoError(t, seeker.Request(ctx, -3, now))
	r, ok := seeker.Flush(ctx, now)
	require.True(t, ok)
	assert.Equal(t, -3.0, r.Requested)
	assert.Equal(t, -5.0, r.Clamped)
	assert.Equal(t, []float64{-5, 0}, r.Targets)
	assert.Equal(t, []float64{0}, players[0].Seeks())
	assert.Equal(t, []float64{0}, players[1].Seeks())

	require.NotNil(t, r.Tick)
	assert.Equal(t, -5.0, r.Tick.GlobalTime)
	assert.True(t, r.Tick.Blocked[1])

	// the primary player waiting at 0 does not move the global time
	tick := c.Poll(ctx, now.Add(time.Second))
	assert.Equal(t, -5.0, tick.GlobalTime)
	assert.True(t, tick.Blocked[1])
}

func TestSeekCoordinator_Targets(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for _, tc := range []struct {
		name    string
		state   syncstate.State
		request float64
		clamped float64
		targets []float64
	}{
		{"initial", syncstate.Initial(), 4, 4, []float64{4, 4}},
		{"initial_negative", syncstate.Initial(), -2, 0, []float64{0, 0}},
		{"positive_offset", manualState(t, 3), 4, 4, []float64{4, 7}},
		{"positive_offset_negative_request", manualState(t, 3), -1, 0, []float64{0, 3}},
		{"negative_offset", manualState(t, -5), 8, 8, []float64{8, 3}},
		{"negative_offset_before_start", manualState(t, -5), 2, 2, []float64{2, 0}},
		{"negative_offset_negative_request", manualState(t, -5), -0.5, -5, []float64{-5, 0}},
		{"negative_offset_before_pre_roll", manualState(t, -5), -7, -5, []float64{-5, 0}},
		{"reset", syncstate.Reset(), -1, 0, []float64{0, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			players, handles := newReadyPlayers(60, 60)
			holder := syncstate.NewHolder(tc.state)
			seeker, err := NewSeekCoordinator(DefaultConfig(), holder, nil, handles...)
			require.NoError(t, err)

			require.NoError(t, seeker.Request(ctx, tc.request, now))
			r, ok := seeker.Flush(ctx, now)
			require.True(t, ok)
			assert.Equal(t, tc.clamped, r.Clamped)
			assert.Equal(t, tc.targets, r.Targets)
			assert.Nil(t, r.Tick)
			for idx, p := range players {
				assert.Equal(t, []float64{math.Max(0, tc.targets[idx])}, p.Seeks())
			}
		})
	}
}

func TestSeekCoordinator_Debounce(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	players, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, 1))
	seeker, err := NewSeekCoordinator(DefaultConfig(), holder, nil, handles...)
	require.NoError(t, err)

	_, ok := seeker.Due()
	require.False(t, ok)

	require.NoError(t, seeker.Request(ctx, 5, now))
	require.NoError(t, seeker.Request(ctx, 6, now.Add(10*time.Millisecond)))
	require.NoError(t, seeker.Request(ctx, 7, now.Add(20*time.Millisecond)))
	due, ok := seeker.Due()
	require.True(t, ok)
	assert.Equal(t, now.Add(70*time.Millisecond), due)

	r, ok := seeker.Flush(ctx, due)
	require.True(t, ok)
	assert.Equal(t, 7.0, r.Requested)
	assert.Equal(t, []float64{7}, players[0].Seeks())
	assert.Equal(t, []float64{8}, players[1].Seeks())

	_, ok = seeker.Flush(ctx, due)
	assert.False(t, ok)
}

func TestSeekCoordinator_InvalidValues(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	_, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, 2))
	seeker, err := NewSeekCoordinator(DefaultConfig(), holder, nil, handles...)
	require.NoError(t, err)

	require.NoError(t, seeker.Request(ctx, 5, now))
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 60.5} {
		err := seeker.Request(ctx, v, now)
		assert.ErrorIs(t, err, ErrInvalidSeekValue, "value %v", v)
	}

	r, ok := seeker.Flush(ctx, now)
	require.True(t, ok)
	assert.Equal(t, 5.0, r.Requested, "the previous request is retained")
}

func TestSeekCoordinator_KnownEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	_, handles := newReadyPlayers(60, 60)
	holder := syncstate.NewHolder(manualState(t, -5))
	seeker, err := NewSeekCoordinator(DefaultConfig(), holder, nil, handles...)
	require.NoError(t, err)

	// the secondary stream ends at global time 65
	require.NoError(t, seeker.Request(ctx, 62, now))
	require.ErrorIs(t, seeker.Request(ctx, 65.5, now), ErrInvalidSeekValue)
}

func TestSeekCoordinator_SkipsUnavailablePlayers(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	players, handles := newReadyPlayers(60, 60, 60)
	players[1].Dispose()
	holder := syncstate.NewHolder(manualState(t, 1))
	seeker, err := NewSeekCoordinator(DefaultConfig(), holder, nil, handles...)
	require.NoError(t, err)

	require.NoError(t, seeker.Request(ctx, 3, now))
	r, ok := seeker.Flush(ctx, now)
	require.True(t, ok)
	assert.Equal(t, []bool{false, true, false}, r.Skipped)
	assert.Empty(t, players[1].Seeks())
	assert.Equal(t, []float64{4}, players[2].Seeks())
}
