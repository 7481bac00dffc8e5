// Package eventlog is an append-only store of game events indexed by dispatch frame.
package eventlog

import "github.com/vortexreplay/recorder/pkg/core"

// Log keeps events in insertion order plus a frame index for exact-match lookup.
// It is not safe for concurrent use; the record and replay loops are single-threaded.
type Log struct {
	events  []core.GameEvent
	byFrame map[int][]int
}

// New creates an empty log.
func New() *Log {
	return &Log{byFrame: make(map[int][]int)}
}

// FromEvents builds a log from stored events, in their stored order.
func FromEvents(events []core.GameEvent) *Log {
	l := &Log{
		events:  make([]core.GameEvent, 0, len(events)),
		byFrame: make(map[int][]int),
	}
	for _, e := range events {
		l.Append(e)
	}
	return l
}

// Append stores a copy of e.
func (l *Log) Append(e core.GameEvent) {
	l.byFrame[e.Frame] = append(l.byFrame[e.Frame], len(l.events))
	l.events = append(l.events, e.Clone())
}

// At returns the events due at frame, in insertion order. Nil when none.
func (l *Log) At(frame int) []core.GameEvent {
	idx := l.byFrame[frame]
	if len(idx) == 0 {
		return nil
	}
	out := make([]core.GameEvent, len(idx))
	for i, j := range idx {
		out[i] = l.events[j].Clone()
	}
	return out
}

// All returns a copy of every event in insertion order.
func (l *Log) All() []core.GameEvent {
	out := make([]core.GameEvent, len(l.events))
	for i, e := range l.events {
		out[i] = e.Clone()
	}
	return out
}

// Frames returns how many distinct frames carry events.
func (l *Log) Frames() int {
	return len(l.byFrame)
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	return len(l.events)
}
