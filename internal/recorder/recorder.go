// Package recorder captures a live session tick by tick: frame snapshots,
// spawn/shoot events and aggregate statistics.
package recorder

import (
	"maps"
	"time"

	"github.com/vortexreplay/recorder/internal/eventlog"
	"github.com/vortexreplay/recorder/pkg/core"
)

// MetadataRecordedAt is the metadata key holding the recording start time.
const MetadataRecordedAt = "recorded_at"

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces the wall clock used for play duration.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithMetadata sets header values copied into every exported document.
func WithMetadata(md map[string]any) Option {
	return func(r *Recorder) {
		r.metadata = maps.Clone(md)
	}
}

// Recorder owns all mutable state of one recording session.
// Every hook is a no-op outside an active recording so instrumentation
// can never destabilise the live simulation.
type Recorder struct {
	now      func() time.Time
	metadata map[string]any

	recording bool
	startedAt time.Time
	stoppedAt time.Time

	frame     int
	frames    []core.FrameRecord
	events    *eventlog.Log
	idCounter int
	stats     core.Statistics
}

// New creates an idle recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		now:    time.Now,
		events: eventlog.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start resets all buffers and marks the wall-clock start.
// Calling it while already recording does nothing.
func (r *Recorder) Start() {
	if r.recording {
		return
	}
	r.recording = true
	r.startedAt = r.now()
	r.stoppedAt = time.Time{}
	r.frame = 0
	r.frames = make([]core.FrameRecord, 0, 1024)
	r.events = eventlog.New()
	r.idCounter = 0
	r.stats = core.Statistics{}
}

// Stop freezes the wall-clock end mark. Later hooks become no-ops.
func (r *Recorder) Stop() {
	if !r.recording {
		return
	}
	r.recording = false
	r.stoppedAt = r.now()
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	return r.recording
}

// Frame returns the current frame counter: the frame number the next
// RecordTick will use and the frame stamped on events noted now.
func (r *Recorder) Frame() int {
	return r.frame
}

// RecordTick appends the snapshot for the current frame and advances the counter.
func (r *Recorder) RecordTick(s core.Snapshot) {
	if !r.recording {
		return
	}
	r.frames = append(r.frames, core.NewFrameRecord(r.frame, s))
	r.frame++
}

// NoteSpawn records an entity creation at the current frame and returns its id.
// It must be called on the tick the entity is actually created.
// Returns -1 when not recording.
func (r *Recorder) NoteSpawn(archetype string, x, y float64) int {
	if !r.recording {
		return -1
	}
	id := r.idCounter
	r.idCounter++
	r.events.Append(core.NewSpawnEvent(r.frame, id, archetype, x, y))
	return id
}

// NoteSpawnScrolled is NoteSpawn with the background scroll offset attached.
func (r *Recorder) NoteSpawnScrolled(archetype string, x, y, scrollX float64) int {
	if !r.recording {
		return -1
	}
	id := r.idCounter
	r.idCounter++
	e := core.NewSpawnEvent(r.frame, id, archetype, x, y)
	e.Spawn.ScrollX = &scrollX
	r.events.Append(e)
	return id
}

// NoteShoot records a projectile fired by entityID at the current frame.
// The id is not checked against earlier spawns here.
func (r *Recorder) NoteShoot(entityID int, x, y, vx, vy float64, delay int) {
	if !r.recording {
		return
	}
	r.events.Append(core.NewShootEvent(r.frame, entityID, x, y, vx, vy, delay))
}

// AddEnemyDestroyed bumps the destroyed-enemy counter.
func (r *Recorder) AddEnemyDestroyed() {
	if r.recording {
		r.stats.EnemiesDestroyed++
	}
}

// AddShotFired bumps the player shot counter.
func (r *Recorder) AddShotFired() {
	if r.recording {
		r.stats.ShotsFired++
	}
}

// AddHit bumps the hit counter.
func (r *Recorder) AddHit() {
	if r.recording {
		r.stats.Hits++
	}
}

// AddDeath bumps the death counter.
func (r *Recorder) AddDeath() {
	if r.recording {
		r.stats.Deaths++
	}
}

// playDuration is end minus start in seconds; while recording the end is now.
func (r *Recorder) playDuration() float64 {
	if r.startedAt.IsZero() {
		return 0
	}
	end := r.stoppedAt
	if r.recording {
		end = r.now()
	}
	return end.Sub(r.startedAt).Seconds()
}

// Export builds a document from the captured data without mutating the
// recorder. It may be called repeatedly, before or after Stop.
func (r *Recorder) Export(score, finalStage int) core.Document {
	md := maps.Clone(r.metadata)
	if md == nil {
		md = make(map[string]any)
	}
	if !r.startedAt.IsZero() {
		md[MetadataRecordedAt] = r.startedAt.UTC().Format(time.RFC3339)
	}

	frames := make([]core.FrameRecord, len(r.frames))
	copy(frames, r.frames)

	stats := r.stats
	stats.TotalFrames = len(frames)
	stats.PlayDuration = r.playDuration()

	return core.Document{
		Metadata:   md,
		Score:      score,
		FinalStage: finalStage,
		Statistics: stats,
		Frames:     frames,
		Events:     r.events.All(),
	}
}
