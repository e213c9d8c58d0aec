package syncstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/observability"
)

// Manager performs the transitions of the live State and hands every
// new State to the Store in the background.
type Manager struct {
	Holder     *Holder
	Store      Store
	SessionKey string

	persistLocker    sync.Mutex
	attemptedVersion uint64
	pending          sync.WaitGroup
}

func NewManager(holder *Holder, store Store, sessionKey string) *Manager {
	if holder == nil {
		holder = NewHolder(Initial())
	}
	return &Manager{
		Holder:     holder,
		Store:      store,
		SessionKey: sessionKey,
	}
}

// Load replaces the live State with the persisted one, if there is any.
func (m *Manager) Load(ctx context.Context) (_ret State, _err error) {
	logger.Debugf(ctx, "Load(ctx): session '%s'", m.SessionKey)
	defer func() { logger.Debugf(ctx, "/Load(ctx): session '%s': %v %v", m.SessionKey, _ret, _err) }()
	if m.Store == nil {
		return m.Holder.Load(), nil
	}
	state, ok, err := m.Store.Load(ctx, m.SessionKey)
	if err != nil {
		return m.Holder.Load(), fmt.Errorf("unable to load the sync state of session '%s': %w", m.SessionKey, err)
	}
	if !ok {
		return m.Holder.Load(), nil
	}
	m.Holder.Replace(state)
	return state, nil
}

func (m *Manager) ApplyAnalysis(ctx context.Context, r syncer.AnalysisResult) State {
	return m.replace(ctx, FromAnalysis(r))
}

func (m *Manager) SetManualOffset(ctx context.Context, seconds float64) (State, error) {
	state, err := FromManualOffset(seconds)
	if err != nil {
		logger.Warnf(ctx, "ignoring the manual offset: %v", err)
		return m.Holder.Load(), err
	}
	return m.replace(ctx, state), nil
}

func (m *Manager) ApplyLiveDiff(ctx context.Context, timeA, timeB float64) (State, error) {
	state, err := FromLiveDiff(timeA, timeB)
	if err != nil {
		logger.Warnf(ctx, "ignoring the live difference: %v", err)
		return m.Holder.Load(), err
	}
	return m.replace(ctx, state), nil
}

func (m *Manager) Reset(ctx context.Context) State {
	return m.replace(ctx, Reset())
}

func (m *Manager) replace(ctx context.Context, state State) State {
	version := m.Holder.Replace(state)
	logger.Debugf(ctx, "sync state v%d: %s", version, state)
	if m.Store == nil {
		return state
	}

	m.pending.Add(1)
	observability.Go(ctx, func() {
		defer m.pending.Done()
		m.persist(ctx, version, state)
	})
	return state
}

func (m *Manager) persist(ctx context.Context, version uint64, state State) {
	m.persistLocker.Lock()
	defer m.persistLocker.Unlock()
	if version <= m.attemptedVersion {
		// a newer state was saved (or failed to be saved) already; writing
		// this one would put a stale state over it
		return
	}
	m.attemptedVersion = version
	if err := m.Store.Save(ctx, m.SessionKey, state); err != nil {
		logger.Errorf(ctx, "unable to persist the sync state v%d of session '%s': %v", version, m.SessionKey, err)
	}
}

// Wait blocks until all the background saves started so far are finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}
