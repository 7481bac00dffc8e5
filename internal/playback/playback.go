// Package playback answers input queries from recorded frames.
package playback

import "github.com/vortexreplay/recorder/pkg/core"

// Adapter serves the recorded buttons of the frame under its cursor.
// Once the cursor passes the last frame every query reports no buttons held.
//
// WasTapped is level-triggered, identical to IsPressed. Recorded sessions
// were captured against that behaviour and replay stays faithful to it.
type Adapter struct {
	frames []core.FrameRecord
	cursor int
}

// New creates an adapter positioned at the first frame.
func New(frames []core.FrameRecord) *Adapter {
	fs := make([]core.FrameRecord, len(frames))
	copy(fs, frames)
	return &Adapter{frames: fs}
}

func (a *Adapter) IsPressed(b core.Button) bool {
	if a.cursor >= len(a.frames) {
		return false
	}
	return a.frames[a.cursor].Inputs.Has(b)
}

func (a *Adapter) WasTapped(b core.Button) bool {
	return a.IsPressed(b)
}

// Advance moves to the next frame. The cursor never passes len(frames).
func (a *Adapter) Advance() {
	if a.cursor < len(a.frames) {
		a.cursor++
	}
}

// Exhausted reports whether every frame has been consumed.
func (a *Adapter) Exhausted() bool {
	return a.cursor >= len(a.frames)
}

// Cursor returns the index of the frame being served.
func (a *Adapter) Cursor() int {
	return a.cursor
}

// Len returns the number of recorded frames.
func (a *Adapter) Len() int {
	return len(a.frames)
}

// Current returns the frame under the cursor, false once exhausted.
func (a *Adapter) Current() (core.FrameRecord, bool) {
	if a.cursor >= len(a.frames) {
		return core.FrameRecord{}, false
	}
	return a.frames[a.cursor], true
}
