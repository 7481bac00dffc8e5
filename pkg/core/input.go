// Package core holds the replay domain types shared by the recorder, the
// replay document codec and the playback side.
package core

import "strings"

// TickRate is the fixed simulation rate in ticks per second.
const TickRate = 30

// Button is one of the logical buttons the simulation reads.
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonUp
	ButtonDown
	ButtonPrimary
	ButtonSecondary

	buttonCount
)

var buttonNames = [buttonCount]string{"left", "right", "up", "down", "primary", "secondary"}

// Buttons returns every logical button in wire order.
func Buttons() []Button {
	out := make([]Button, 0, buttonCount)
	for b := Button(0); b < buttonCount; b++ {
		out = append(out, b)
	}
	return out
}

// Valid reports whether b is a known button.
func (b Button) Valid() bool {
	return b < buttonCount
}

func (b Button) String() string {
	if !b.Valid() {
		return "unknown"
	}
	return buttonNames[b]
}

// ButtonSet is the held state of every button for one tick, one bit per Button.
type ButtonSet uint8

// NewButtonSet returns a set with the given buttons held.
func NewButtonSet(held ...Button) ButtonSet {
	var s ButtonSet
	for _, b := range held {
		s = s.With(b, true)
	}
	return s
}

// Has reports whether b is held.
func (s ButtonSet) Has(b Button) bool {
	if !b.Valid() {
		return false
	}
	return s&(1<<b) != 0
}

// With returns a copy of s with b set to pressed.
func (s ButtonSet) With(b Button, pressed bool) ButtonSet {
	if !b.Valid() {
		return s
	}
	if pressed {
		return s | 1<<b
	}
	return s &^ (1 << b)
}

func (s ButtonSet) String() string {
	var held []string
	for _, b := range Buttons() {
		if s.Has(b) {
			held = append(held, b.String())
		}
	}
	if len(held) == 0 {
		return "none"
	}
	return strings.Join(held, "+")
}
