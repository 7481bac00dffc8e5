// Package input defines the query surface the simulation reads buttons
// through, so live devices and recorded frames are interchangeable.
package input

import "github.com/vortexreplay/recorder/pkg/core"

// Source answers per-tick button queries.
type Source interface {
	// IsPressed reports whether b is held on the current tick.
	IsPressed(b core.Button) bool
	// WasTapped reports whether b should count as a fresh press this tick.
	WasTapped(b core.Button) bool
}

// Live is a Source backed by device state the host pushes once per tick.
type Live struct {
	cur  core.ButtonSet
	prev core.ButtonSet
}

// NewLive returns a Live source with nothing held.
func NewLive() *Live {
	return &Live{}
}

// Update latches the device state for the next tick.
func (l *Live) Update(held core.ButtonSet) {
	l.prev = l.cur
	l.cur = held
}

// Held returns the full button state of the current tick, as recorded into frames.
func (l *Live) Held() core.ButtonSet {
	return l.cur
}

func (l *Live) IsPressed(b core.Button) bool {
	return l.cur.Has(b)
}

// WasTapped is edge-triggered: held now and not held on the previous tick.
func (l *Live) WasTapped(b core.Button) bool {
	return l.cur.Has(b) && !l.prev.Has(b)
}
