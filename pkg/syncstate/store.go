package syncstate

import (
	"context"
)

// Store persists the State of a media session.
type Store interface {
	Save(ctx context.Context, sessionKey string, state State) error

	// Load returns false if nothing was saved for the session.
	Load(ctx context.Context, sessionKey string) (State, bool, error)
}

/* for easier copy&paste:

func () Save(
	ctx context.Context,
	sessionKey string,
	state syncstate.State,
) error {
}

func () Load(
	ctx context.Context,
	sessionKey string,
) (syncstate.State, bool, error) {
}

*/
