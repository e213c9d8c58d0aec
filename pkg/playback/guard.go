package playback

import (
	"time"
)

// Guard marks that some subsystem has just seeked the players and the
// resulting notifications have not settled yet. While it is held, no
// corrective seeks are issued.
//
// Guard is owned by a single goroutine (the Session loop).
type Guard struct {
	until time.Time
}

// Hold extends the guard to at least now+d.
func (g *Guard) Hold(now time.Time, d time.Duration) {
	if until := now.Add(d); until.After(g.until) {
		g.until = until
	}
}

func (g *Guard) Held(now time.Time) bool {
	return now.Before(g.until)
}

func (g *Guard) Release() {
	g.until = time.Time{}
}
