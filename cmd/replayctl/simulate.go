package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vortexreplay/recorder/internal/eventlog"
	"github.com/vortexreplay/recorder/internal/recorder"
	"github.com/vortexreplay/recorder/internal/replay"
	"github.com/vortexreplay/recorder/pkg/core"
)

// MetadataReplayedFrom marks documents re-recorded by a headless run.
const MetadataReplayedFrom = "replayed_from"

type simulateOptions struct {
	// Only restricts the registered archetypes; nil registers every archetype
	// the document spawns.
	Only    []string
	Source  string
	Start   time.Time
	Logger  replay.Logger
	OnFrame func(frame int)
}

type simulation struct {
	Ticks    int
	Stats    replay.Stats
	Executed core.Document
	// IDMismatches counts spawns whose re-recorded id differs from the stored one.
	IDMismatches int
}

// headlessHost stands in for the game: it has no physics, so positions come
// from the stored frames, and projectile emitters and scroll offsets from the
// stored events of the tick being replayed.
type headlessHost struct {
	rec    *recorder.Recorder
	stored *eventlog.Log
	tick   int

	shotsTaken   map[int]int
	idMismatches int
}

func (h *headlessHost) spawnFactory(archetype string) replay.Factory {
	return func(x, y float64, id int) error {
		var got int
		if scroll := h.storedScroll(id); scroll != nil {
			got = h.rec.NoteSpawnScrolled(archetype, x, y, *scroll)
		} else {
			got = h.rec.NoteSpawn(archetype, x, y)
		}
		if got != id {
			h.idMismatches++
		}
		return nil
	}
}

func (h *headlessHost) storedScroll(id int) *float64 {
	for _, e := range h.stored.At(h.tick) {
		if e.Kind == core.EventSpawn && e.EntityID == id && e.Spawn != nil {
			return e.Spawn.ScrollX
		}
	}
	return nil
}

// InjectProjectile attributes the projectile to the n-th stored shoot of the tick.
func (h *headlessHost) InjectProjectile(x, y, vx, vy float64, delay int) {
	emitter := -1
	n := h.shotsTaken[h.tick]
	for _, e := range h.stored.At(h.tick) {
		if e.Kind != core.EventShoot {
			continue
		}
		if n == 0 {
			emitter = e.EntityID
			break
		}
		n--
	}
	h.shotsTaken[h.tick]++
	h.rec.NoteShoot(emitter, x, y, vx, vy, delay)
}

func archetypesOf(doc core.Document) []string {
	var out []string
	for _, e := range doc.Events {
		if e.Kind == core.EventSpawn && e.Spawn != nil && e.Spawn.Archetype != "" && !slices.Contains(out, e.Spawn.Archetype) {
			out = append(out, e.Spawn.Archetype)
		}
	}
	slices.Sort(out)
	return out
}

// simulate replays doc headlessly to exhaustion while re-recording it, so the
// executed document can be checked against the stored one.
func simulate(ctx context.Context, doc core.Document, opts simulateOptions) (simulation, error) {
	var res simulation

	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	clock := func() time.Time {
		return start.Add(time.Duration(core.FrameTimestamp(res.Ticks) * float64(time.Second)))
	}

	rec := recorder.New(
		recorder.WithClock(clock),
		recorder.WithMetadata(map[string]any{MetadataReplayedFrom: opts.Source}),
	)
	host := &headlessHost{
		rec:        rec,
		stored:     eventlog.FromEvents(doc.Events),
		shotsTaken: make(map[int]int),
	}

	registry := replay.NewRegistry()
	archetypes := archetypesOf(doc)
	if opts.Only != nil {
		archetypes = slices.DeleteFunc(archetypes, func(a string) bool { return !slices.Contains(opts.Only, a) })
	}
	for _, a := range archetypes {
		if err := registry.Register(a, host.spawnFactory(a)); err != nil {
			return res, err
		}
	}

	var syncOpts []replay.Option
	if opts.Logger != nil {
		syncOpts = append(syncOpts, replay.WithLogger(opts.Logger))
	}
	sync, err := replay.New(doc, registry, host, syncOpts...)
	if err != nil {
		return res, fmt.Errorf("failed to create synchronizer: %w", err)
	}

	rec.Start()
	for !sync.Done() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n := sync.Frame()
		host.tick = n
		if opts.OnFrame != nil {
			opts.OnFrame(n)
		}

		src := sync.Input()
		var held core.ButtonSet
		for _, b := range core.Buttons() {
			held = held.With(b, src.IsPressed(b))
		}
		stored := doc.Frames[n]

		sync.Tick(ctx)
		rec.RecordTick(core.Snapshot{
			PlayerX:       stored.PlayerX,
			PlayerY:       stored.PlayerY,
			Lives:         stored.Lives,
			Score:         stored.Score,
			CurrentWeapon: stored.CurrentWeapon,
			Stage:         stored.Stage,
			Inputs:        held,
		})
		res.Ticks++
	}
	rec.Stop()

	executed := rec.Export(doc.Score, doc.FinalStage)
	executed.Statistics.EnemiesDestroyed = doc.Statistics.EnemiesDestroyed
	executed.Statistics.ShotsFired = doc.Statistics.ShotsFired
	executed.Statistics.Hits = doc.Statistics.Hits
	executed.Statistics.Deaths = doc.Statistics.Deaths

	res.Stats = sync.Stats()
	res.Executed = executed
	res.IDMismatches = host.idMismatches
	return res, nil
}

// divergence counts frames and events of executed that differ from stored.
func divergence(stored, executed core.Document) (frames, events int) {
	for i := 0; i < max(len(stored.Frames), len(executed.Frames)); i++ {
		if i >= len(stored.Frames) || i >= len(executed.Frames) || stored.Frames[i] != executed.Frames[i] {
			frames++
		}
	}
	for i := 0; i < max(len(stored.Events), len(executed.Events)); i++ {
		if i >= len(stored.Events) || i >= len(executed.Events) || !sameEvent(stored.Events[i], executed.Events[i]) {
			events++
		}
	}
	return frames, events
}

func sameEvent(a, b core.GameEvent) bool {
	if a.Frame != b.Frame || a.Kind != b.Kind || a.EntityID != b.EntityID {
		return false
	}
	switch {
	case a.Spawn != nil && b.Spawn != nil:
		if a.Spawn.Archetype != b.Spawn.Archetype || a.Spawn.X != b.Spawn.X || a.Spawn.Y != b.Spawn.Y {
			return false
		}
		if (a.Spawn.ScrollX == nil) != (b.Spawn.ScrollX == nil) {
			return false
		}
		return a.Spawn.ScrollX == nil || *a.Spawn.ScrollX == *b.Spawn.ScrollX
	case a.Shoot != nil && b.Shoot != nil:
		return *a.Shoot == *b.Shoot
	default:
		return a.Spawn == nil && b.Spawn == nil && a.Shoot == nil && b.Shoot == nil
	}
}
