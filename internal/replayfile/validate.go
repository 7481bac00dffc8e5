package replayfile

import (
	"errors"
	"fmt"

	"github.com/vortexreplay/recorder/pkg/core"
)

// Validate checks a decoded document for consistency: dense frame numbers,
// non-negative event frames, unique spawn ids and shoot events whose emitter
// was spawned at or before the shot. All violations are joined into one error;
// nil means the document is consistent.
func Validate(doc core.Document) error {
	var errs []error

	for i, f := range doc.Frames {
		if f.FrameNumber != i {
			// one report is enough; every later index is off by the same gap
			errs = append(errs, fmt.Errorf("%w: frames[%d] has frame_number %d", ErrFrameGap, i, f.FrameNumber))
			break
		}
	}

	spawnedAt := make(map[int]int)
	for i, e := range doc.Events {
		if e.Frame < 0 {
			errs = append(errs, fmt.Errorf("%w: enemy_events[%d] at frame %d", ErrNegativeFrame, i, e.Frame))
		}
		if e.Kind != core.EventSpawn {
			continue
		}
		if prev, ok := spawnedAt[e.EntityID]; ok {
			errs = append(errs, fmt.Errorf("%w: entity %d spawned at frames %d and %d",
				ErrDuplicateSpawn, e.EntityID, prev, e.Frame))
			if e.Frame >= prev {
				continue
			}
		}
		spawnedAt[e.EntityID] = e.Frame
	}

	for i, e := range doc.Events {
		if e.Kind != core.EventShoot {
			continue
		}
		at, ok := spawnedAt[e.EntityID]
		if !ok || at > e.Frame {
			errs = append(errs, &DanglingShootError{Index: i, Frame: e.Frame, EntityID: e.EntityID})
		}
	}

	return errors.Join(errs...)
}
