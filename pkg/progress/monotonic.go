package progress

import (
	"context"
	"sync"
)

// Monotonic wraps a Sink and guarantees that the reported percentage never
// decreases and stays within 0..100. Reports that would go backwards are
// forwarded with the previous (higher) value, so stage labels still arrive.
type Monotonic struct {
	Sink Sink

	locker sync.Mutex
	last   float64
}

var _ Sink = (*Monotonic)(nil)

func NewMonotonic(sink Sink) *Monotonic {
	return &Monotonic{Sink: OrNoop(sink)}
}

func (m *Monotonic) Progress(ctx context.Context, stage string, percent float64) {
	m.locker.Lock()
	percent = clampPercent(percent)
	if percent < m.last {
		percent = m.last
	}
	m.last = percent
	m.locker.Unlock()
	m.Sink.Progress(ctx, stage, percent)
}

func (m *Monotonic) Last() float64 {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.last
}

func (m *Monotonic) Info(ctx context.Context, message string) {
	m.Sink.Info(ctx, message)
}

func (m *Monotonic) Warn(ctx context.Context, message string) {
	m.Sink.Warn(ctx, message)
}

// Multi fans out every call to all the sinks.
type Multi []Sink

var _ Sink = Multi(nil)

func (s Multi) Progress(ctx context.Context, stage string, percent float64) {
	for _, sink := range s {
		sink.Progress(ctx, stage, percent)
	}
}

func (s Multi) Info(ctx context.Context, message string) {
	for _, sink := range s {
		sink.Info(ctx, message)
	}
}

func (s Multi) Warn(ctx context.Context, message string) {
	for _, sink := range s {
		sink.Warn(ctx, message)
	}
}
