package syncstate

import (
	"sync/atomic"
)

type snapshot struct {
	state   State
	version uint64
}

// Holder keeps the single live State. Readers get a whole State (and its
// version) at once, so fields of different States never mix.
type Holder struct {
	current atomic.Pointer[snapshot]
}

func NewHolder(initial State) *Holder {
	h := &Holder{}
	h.current.Store(&snapshot{state: initial})
	return h
}

func (h *Holder) Load() State {
	state, _ := h.Snapshot()
	return state
}

// Snapshot returns the live State and its version. The version is
// incremented by every replacement.
func (h *Holder) Snapshot() (State, uint64) {
	s := h.current.Load()
	return s.state, s.version
}

func (h *Holder) Version() uint64 {
	_, version := h.Snapshot()
	return version
}

// Replace makes 'state' the live one and returns its version.
func (h *Holder) Replace(state State) uint64 {
	for {
		old := h.current.Load()
		next := &snapshot{state: state, version: old.version + 1}
		if h.current.CompareAndSwap(old, next) {
			return next.version
		}
	}
}
