package verify

import (
	"sort"

	"github.com/vortexreplay/recorder/pkg/core"
)

// DefaultCompareFrames is how many leading frames Compare inspects when n <= 0.
const DefaultCompareFrames = 20

// Totals are whole-session figures for both sides of a comparison.
type Totals struct {
	Frames [2]int
	Score  [2]int
	Events [2]int
	Deaths [2]int
}

// FrameDiff is the per-frame delta between the original and executed sessions.
type FrameDiff struct {
	Frame          int
	OriginalX      float64
	OriginalY      float64
	ExecutedX      float64
	ExecutedY      float64
	OriginalInputs core.ButtonSet
	ExecutedInputs core.ButtonSet
}

// DX is executed minus original on the x axis.
func (d FrameDiff) DX() float64 { return d.ExecutedX - d.OriginalX }

// DY is executed minus original on the y axis.
func (d FrameDiff) DY() float64 { return d.ExecutedY - d.OriginalY }

// InputsMatch reports whether the directional buttons agree.
func (d FrameDiff) InputsMatch() bool {
	return directional(d.OriginalInputs) == directional(d.ExecutedInputs)
}

func directional(s core.ButtonSet) core.ButtonSet {
	return s & core.NewButtonSet(core.ButtonLeft, core.ButtonRight, core.ButtonUp, core.ButtonDown)
}

// Comparison is the result of Compare.
type Comparison struct {
	Totals Totals
	Frames []FrameDiff

	// EndedEarly is how many frames short the executed session is; 0 when it
	// ran at least as long as the original.
	EndedEarly int
	// LastExecuted is the executed session's final frame and, when the
	// original reached the same frame number, the original's.
	LastExecuted       *core.FrameRecord
	OriginalAtLastExec *core.FrameRecord

	OriginalSpawnFrames []int
	ExecutedSpawnFrames []int
}

// Compare lines up an original session and a session executed from its
// replay, frame by frame over the first n frames (DefaultCompareFrames if n <= 0).
func Compare(original, executed core.Document, n int) Comparison {
	if n <= 0 {
		n = DefaultCompareFrames
	}
	c := Comparison{
		Totals: Totals{
			Frames: [2]int{len(original.Frames), len(executed.Frames)},
			Score:  [2]int{original.Score, executed.Score},
			Events: [2]int{len(original.Events), len(executed.Events)},
			Deaths: [2]int{original.Statistics.Deaths, executed.Statistics.Deaths},
		},
		OriginalSpawnFrames: spawnFrames(original),
		ExecutedSpawnFrames: spawnFrames(executed),
	}

	limit := min(n, len(original.Frames), len(executed.Frames))
	c.Frames = make([]FrameDiff, limit)
	for i := 0; i < limit; i++ {
		o, e := original.Frames[i], executed.Frames[i]
		c.Frames[i] = FrameDiff{
			Frame:          i,
			OriginalX:      o.PlayerX,
			OriginalY:      o.PlayerY,
			ExecutedX:      e.PlayerX,
			ExecutedY:      e.PlayerY,
			OriginalInputs: o.Inputs,
			ExecutedInputs: e.Inputs,
		}
	}

	if len(executed.Frames) < len(original.Frames) {
		c.EndedEarly = len(original.Frames) - len(executed.Frames)
		if len(executed.Frames) > 0 {
			last := executed.Frames[len(executed.Frames)-1]
			c.LastExecuted = &last
			if fn := last.FrameNumber; fn >= 0 && fn < len(original.Frames) {
				orig := original.Frames[fn]
				c.OriginalAtLastExec = &orig
			}
		}
	}

	return c
}

func spawnFrames(doc core.Document) []int {
	var out []int
	for _, e := range doc.Events {
		if e.Kind == core.EventSpawn {
			out = append(out, e.Frame)
		}
	}
	sort.Ints(out)
	return out
}
