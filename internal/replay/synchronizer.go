// Package replay drives a running simulation from a recorded document:
// recorded inputs through the playback adapter and recorded spawn/shoot
// events through host-provided factories.
package replay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vortexreplay/recorder/internal/eventlog"
	"github.com/vortexreplay/recorder/internal/input"
	"github.com/vortexreplay/recorder/internal/playback"
	"github.com/vortexreplay/recorder/pkg/core"
)

// Injector places a projectile into the running simulation.
type Injector interface {
	InjectProjectile(x, y, vx, vy float64, delay int)
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(x, y, vx, vy float64, delay int)

func (f InjectorFunc) InjectProjectile(x, y, vx, vy float64, delay int) {
	f(x, y, vx, vy, delay)
}

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger for dispatch diagnostics.
func WithLogger(l Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Stats counts what the synchronizer has dispatched so far.
type Stats struct {
	SpawnsDispatched int
	ShotsDispatched  int
	SpawnsDropped    int
}

// Synchronizer advances replay state one tick per host tick. Its tick counter
// is the only authority over the input cursor: the adapter is advanced from
// Tick and nowhere else, so event dispatch and input playback cannot drift.
type Synchronizer struct {
	events   *eventlog.Log
	input    *playback.Adapter
	registry *Registry
	injector Injector
	logger   Logger

	tick  int
	stats Stats

	dispatched metric.Int64Counter
	dropped    metric.Int64Counter
}

// New prepares a synchronizer for doc. Uses the global OTel meter for
// metrics (no-op if not configured).
func New(doc core.Document, registry *Registry, injector Injector, opts ...Option) (*Synchronizer, error) {
	if registry == nil {
		return nil, fmt.Errorf("replay: nil registry")
	}
	if injector == nil {
		return nil, fmt.Errorf("replay: nil injector")
	}

	s := &Synchronizer{
		events:   eventlog.FromEvents(doc.Events),
		input:    playback.New(doc.Frames),
		registry: registry,
		injector: injector,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter()
	var err error

	s.dispatched, err = m.Int64Counter(
		"replay.events.dispatched",
		metric.WithDescription("Recorded events dispatched during replay"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatched counter: %w", err)
	}

	s.dropped, err = m.Int64Counter(
		"replay.events.dropped",
		metric.WithDescription("Recorded spawn events skipped during replay"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return s, nil
}

// Input returns the source the host must read buttons from while replaying.
func (s *Synchronizer) Input() input.Source {
	return s.input
}

// Frame returns the tick that the next call to Tick will process.
func (s *Synchronizer) Frame() int {
	return s.tick
}

// Done reports whether every recorded frame has been consumed. The host
// decides what to do then; the synchronizer never stops it.
func (s *Synchronizer) Done() bool {
	return s.input.Exhausted()
}

// Stats returns dispatch counters.
func (s *Synchronizer) Stats() Stats {
	return s.stats
}

// Tick dispatches the events recorded for the current tick, then moves the
// input cursor and the tick counter forward together. Call it once per host
// tick, after the simulation has read input for that tick.
func (s *Synchronizer) Tick(ctx context.Context) {
	due := s.events.At(s.tick)
	if len(due) > 0 {
		s.logger.Debug("dispatching events", "frame", s.tick, "count", len(due))
	}

	for _, e := range due {
		switch e.Kind {
		case core.EventSpawn:
			s.spawn(ctx, e)
		case core.EventShoot:
			s.shoot(ctx, e)
		}
	}

	s.input.Advance()
	s.tick++
}

func (s *Synchronizer) spawn(ctx context.Context, e core.GameEvent) {
	p := e.Spawn
	if p == nil || p.Archetype == "" {
		s.drop(ctx, e, "empty archetype")
		return
	}

	factory, ok := s.registry.Lookup(p.Archetype)
	if !ok {
		s.logger.Error("unknown archetype", "frame", e.Frame, "archetype", p.Archetype, "id", e.EntityID)
		s.drop(ctx, e, "unknown archetype")
		return
	}

	if err := factory(p.X, p.Y, e.EntityID); err != nil {
		s.logger.Error("spawn failed", "frame", e.Frame, "archetype", p.Archetype, "id", e.EntityID, "error", err)
		s.drop(ctx, e, "factory error")
		return
	}

	s.stats.SpawnsDispatched++
	s.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", e.Kind.String())))
}

func (s *Synchronizer) shoot(ctx context.Context, e core.GameEvent) {
	p := e.Shoot
	if p == nil {
		return
	}
	// The emitter may already be gone; projectiles are injected regardless.
	s.injector.InjectProjectile(p.X, p.Y, p.VX, p.VY, p.Delay)
	s.stats.ShotsDispatched++
	s.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", e.Kind.String())))
}

func (s *Synchronizer) drop(ctx context.Context, e core.GameEvent, reason string) {
	s.logger.Debug("event dropped", "frame", e.Frame, "id", e.EntityID, "reason", reason)
	s.stats.SpawnsDropped++
	s.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
