package replayfile

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for any document that cannot be decoded into a
	// complete replay: bad JSON, wrong field types, missing required fields or
	// unknown event types.
	ErrMalformed = errors.New("malformed replay document")

	// ErrFrameGap reports frame numbers that are not dense from 0.
	ErrFrameGap = errors.New("frame numbers not dense")

	// ErrDuplicateSpawn reports two spawn events sharing an entity id.
	ErrDuplicateSpawn = errors.New("duplicate spawn id")

	// ErrNegativeFrame reports an event scheduled before frame 0.
	ErrNegativeFrame = errors.New("event frame is negative")
)

// StructureError names a required top-level field that is absent or null.
type StructureError struct {
	Field string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (e *StructureError) Unwrap() error {
	return ErrMalformed
}

// DanglingShootError is a shoot event whose emitter has no spawn at or before its frame.
type DanglingShootError struct {
	Index    int
	Frame    int
	EntityID int
}

func (e *DanglingShootError) Error() string {
	return fmt.Sprintf("enemy_events[%d]: shoot at frame %d references entity %d with no earlier spawn",
		e.Index, e.Frame, e.EntityID)
}
