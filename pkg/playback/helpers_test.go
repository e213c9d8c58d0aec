package playback

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/player"
	"github.com/xaionaro-go/audiosync/pkg/player/simulated"
	"github.com/xaionaro-go/audiosync/pkg/syncstate"
)

func newReadyPlayers(durations ...float64) ([]*simulated.Player, []player.Handle) {
	players := make([]*simulated.Player, 0, len(durations))
	handles := make([]player.Handle, 0, len(durations))
	for idx, duration := range durations {
		p := simulated.New(string(rune('A'+idx)), duration)
		p.MarkReady()
		players = append(players, p)
		handles = append(handles, p)
	}
	return players, handles
}

func manualState(t *testing.T, offset float64) syncstate.State {
	state, err := syncstate.FromManualOffset(offset)
	require.NoError(t, err)
	return state
}
