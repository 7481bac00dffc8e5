package core

import "maps"

// Statistics are aggregate counters for one session.
// PlayDuration is wall-clock seconds and may diverge from TotalFrames/TickRate
// when the host stalls.
type Statistics struct {
	TotalFrames      int
	PlayDuration     float64
	EnemiesDestroyed int
	ShotsFired       int
	Hits             int
	Deaths           int
}

// Document is a finished session: header, result, frames and event log.
// It is read-only once produced.
type Document struct {
	Metadata   map[string]any
	Score      int
	FinalStage int
	Statistics Statistics
	Frames     []FrameRecord
	Events     []GameEvent
}

// Clone returns a deep copy of d. Nested metadata values are shared.
func (d Document) Clone() Document {
	out := d
	out.Metadata = maps.Clone(d.Metadata)
	if d.Frames != nil {
		out.Frames = make([]FrameRecord, len(d.Frames))
		copy(out.Frames, d.Frames)
	}
	if d.Events != nil {
		out.Events = make([]GameEvent, len(d.Events))
		for i, e := range d.Events {
			out.Events[i] = e.Clone()
		}
	}
	return out
}

// CountEvents returns the number of spawn and shoot events.
func (d Document) CountEvents() (spawns, shoots int) {
	for _, e := range d.Events {
		switch e.Kind {
		case EventSpawn:
			spawns++
		case EventShoot:
			shoots++
		}
	}
	return spawns, shoots
}
