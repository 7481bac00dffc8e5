// Package replayfile converts replay documents to and from their persisted
// JSON form and checks loaded documents for consistency.
package replayfile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vortexreplay/recorder/pkg/core"
)

// Marshal encodes doc in the persisted wire format.
func Marshal(doc core.Document) ([]byte, error) {
	return json.Marshal(toWire(doc))
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(doc core.Document) ([]byte, error) {
	return json.MarshalIndent(toWire(doc), "", "  ")
}

// Unmarshal decodes a persisted document. Every required top-level field
// must be present and non-null; statistics sub-fields and per-frame fields
// default to zero. On error no partial document is returned.
//
// Unmarshal checks structure only; use Validate or LoadStrict for frame
// density and event linkage.
func Unmarshal(data []byte) (core.Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return core.Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if top == nil {
		return core.Document{}, fmt.Errorf("%w: document is null", ErrMalformed)
	}
	for _, field := range requiredFields {
		raw, ok := top[field]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return core.Document{}, &StructureError{Field: field}
		}
	}

	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return core.Document{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromWire(w)
}

// LoadStrict is Unmarshal followed by Validate.
func LoadStrict(data []byte) (core.Document, error) {
	doc, err := Unmarshal(data)
	if err != nil {
		return core.Document{}, err
	}
	if err := Validate(doc); err != nil {
		return core.Document{}, err
	}
	return doc, nil
}

// UnmarshalEvents decodes a bare enemy_events array, as exported on its own
// for pattern templates.
func UnmarshalEvents(data []byte) ([]core.GameEvent, error) {
	var ws []wireEvent
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: events array is null", ErrMalformed)
	}
	return eventsFromWire(ws)
}

// MarshalEvents encodes events as a bare enemy_events array.
func MarshalEvents(events []core.GameEvent) ([]byte, error) {
	return json.MarshalIndent(eventsToWire(events), "", "  ")
}

func toWire(doc core.Document) wireDocument {
	md := doc.Metadata
	if md == nil {
		md = map[string]any{}
	}
	frames := make([]wireFrame, len(doc.Frames))
	for i, f := range doc.Frames {
		frames[i] = wireFrame{
			FrameNumber:   f.FrameNumber,
			PlayerX:       f.PlayerX,
			PlayerY:       f.PlayerY,
			PlayerLives:   f.Lives,
			PlayerScore:   f.Score,
			CurrentWeapon: f.CurrentWeapon,
			InputLeft:     bit(f.Inputs.Has(core.ButtonLeft)),
			InputRight:    bit(f.Inputs.Has(core.ButtonRight)),
			InputUp:       bit(f.Inputs.Has(core.ButtonUp)),
			InputDown:     bit(f.Inputs.Has(core.ButtonDown)),
			InputButton1:  bit(f.Inputs.Has(core.ButtonPrimary)),
			InputButton2:  bit(f.Inputs.Has(core.ButtonSecondary)),
			StageNum:      f.Stage,
			Timestamp:     f.Timestamp,
		}
	}
	s := doc.Statistics
	return wireDocument{
		Metadata:   md,
		Score:      doc.Score,
		FinalStage: doc.FinalStage,
		Statistics: wireStatistics{
			TotalFrames:      s.TotalFrames,
			PlayDuration:     s.PlayDuration,
			EnemiesDestroyed: s.EnemiesDestroyed,
			ShotsFired:       s.ShotsFired,
			Hits:             s.Hits,
			Deaths:           s.Deaths,
		},
		Frames:      frames,
		EnemyEvents: eventsToWire(doc.Events),
	}
}

func eventsToWire(events []core.GameEvent) []wireEvent {
	out := make([]wireEvent, 0, len(events))
	for _, e := range events {
		w := wireEvent{Frame: e.Frame, EnemyID: e.EntityID}
		switch {
		case e.Kind == core.EventSpawn && e.Spawn != nil:
			w.EventType = eventTypeSpawn
			w.EnemyType = e.Spawn.Archetype
			w.X, w.Y = e.Spawn.X, e.Spawn.Y
			if e.Spawn.ScrollX != nil {
				v := *e.Spawn.ScrollX
				w.ScrollX = &v
			}
		case e.Kind == core.EventShoot && e.Shoot != nil:
			w.EventType = eventTypeShoot
			vx, vy, delay := e.Shoot.VX, e.Shoot.VY, e.Shoot.Delay
			w.X, w.Y = e.Shoot.X, e.Shoot.Y
			w.VX, w.VY, w.Delay = &vx, &vy, &delay
		default:
			// payload-less events have nothing to replay
			continue
		}
		out = append(out, w)
	}
	return out
}

func fromWire(w wireDocument) (core.Document, error) {
	events, err := eventsFromWire(w.EnemyEvents)
	if err != nil {
		return core.Document{}, err
	}

	frames := make([]core.FrameRecord, len(w.Frames))
	for i, f := range w.Frames {
		frames[i] = core.FrameRecord{
			FrameNumber:   f.FrameNumber,
			PlayerX:       f.PlayerX,
			PlayerY:       f.PlayerY,
			Lives:         f.PlayerLives,
			Score:         f.PlayerScore,
			CurrentWeapon: f.CurrentWeapon,
			Stage:         f.StageNum,
			Timestamp:     f.Timestamp,
			Inputs: core.ButtonSet(0).
				With(core.ButtonLeft, bool(f.InputLeft)).
				With(core.ButtonRight, bool(f.InputRight)).
				With(core.ButtonUp, bool(f.InputUp)).
				With(core.ButtonDown, bool(f.InputDown)).
				With(core.ButtonPrimary, bool(f.InputButton1)).
				With(core.ButtonSecondary, bool(f.InputButton2)),
		}
	}

	s := w.Statistics
	return core.Document{
		Metadata:   w.Metadata,
		Score:      w.Score,
		FinalStage: w.FinalStage,
		Statistics: core.Statistics{
			TotalFrames:      s.TotalFrames,
			PlayDuration:     s.PlayDuration,
			EnemiesDestroyed: s.EnemiesDestroyed,
			ShotsFired:       s.ShotsFired,
			Hits:             s.Hits,
			Deaths:           s.Deaths,
		},
		Frames: frames,
		Events: events,
	}, nil
}

func eventsFromWire(ws []wireEvent) ([]core.GameEvent, error) {
	events := make([]core.GameEvent, 0, len(ws))
	for i, w := range ws {
		switch w.EventType {
		case eventTypeSpawn:
			e := core.NewSpawnEvent(w.Frame, w.EnemyID, w.EnemyType, w.X, w.Y)
			if w.ScrollX != nil {
				v := *w.ScrollX
				e.Spawn.ScrollX = &v
			}
			events = append(events, e)
		case eventTypeShoot:
			var vx, vy float64
			var delay int
			if w.VX != nil {
				vx = *w.VX
			}
			if w.VY != nil {
				vy = *w.VY
			}
			if w.Delay != nil {
				delay = *w.Delay
			}
			events = append(events, core.NewShootEvent(w.Frame, w.EnemyID, w.X, w.Y, vx, vy, delay))
		default:
			return nil, fmt.Errorf("%w: enemy_events[%d]: unknown event_type %q", ErrMalformed, i, w.EventType)
		}
	}
	return events, nil
}
