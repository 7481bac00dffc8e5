package verify

import (
	"slices"
	"sort"

	"github.com/vortexreplay/recorder/pkg/core"
)

// Signature identifies a spawn by when and what, ignoring id and position.
type Signature struct {
	Frame     int
	Archetype string
}

// SpawnSignatures returns the spawn signatures of doc in event order.
func SpawnSignatures(doc core.Document) []Signature {
	var out []Signature
	for _, e := range doc.Events {
		if e.Kind == core.EventSpawn && e.Spawn != nil {
			out = append(out, Signature{Frame: e.Frame, Archetype: e.Spawn.Archetype})
		}
	}
	return out
}

// MissingSpawns lists signatures of a shorter session absent from a longer one.
type MissingSpawns struct {
	Shorter string
	Longer  string
	Missing []Signature
}

// FrameConflict is a frame inside the common range where sessions spawned
// different archetypes.
type FrameConflict struct {
	Frame      int
	Archetypes map[string][]string // session name -> sorted archetypes
}

// PatternReport compares the enemy patterns of several sessions.
type PatternReport struct {
	// CommonFrames is the smallest total_frames across sessions; only spawns
	// before it are compared frame by frame.
	CommonFrames int
	// ConsistentSpawns counts distinct frames in the common range that spawn
	// something and agree across every session.
	ConsistentSpawns int
	Missing          []MissingSpawns
	Conflicts        []FrameConflict
}

// OK reports whether every session saw the same enemy pattern.
func (r PatternReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Conflicts) == 0
}

// ComparePatterns checks that sessions recorded against the same stage agree
// on their spawns. Every spawn of a session must appear in each session with
// at least as many spawns, and inside the frame range all sessions covered the
// same archetypes must spawn on the same frames.
func ComparePatterns(docs map[string]core.Document) PatternReport {
	var rep PatternReport
	if len(docs) == 0 {
		return rep
	}

	names := make([]string, 0, len(docs))
	sigs := make(map[string][]Signature, len(docs))
	rep.CommonFrames = -1
	for name, doc := range docs {
		names = append(names, name)
		sigs[name] = SpawnSignatures(doc)
		if rep.CommonFrames < 0 || doc.Statistics.TotalFrames < rep.CommonFrames {
			rep.CommonFrames = doc.Statistics.TotalFrames
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		if len(sigs[names[i]]) != len(sigs[names[j]]) {
			return len(sigs[names[i]]) < len(sigs[names[j]])
		}
		return names[i] < names[j]
	})

	for i, shorter := range names {
		for _, longer := range names[i+1:] {
			have := make(map[Signature]bool, len(sigs[longer]))
			for _, s := range sigs[longer] {
				have[s] = true
			}
			var missing []Signature
			seen := make(map[Signature]bool)
			for _, s := range sigs[shorter] {
				if !have[s] && !seen[s] {
					missing = append(missing, s)
					seen[s] = true
				}
			}
			if len(missing) > 0 {
				sortSignatures(missing)
				rep.Missing = append(rep.Missing, MissingSpawns{Shorter: shorter, Longer: longer, Missing: missing})
			}
		}
	}

	// frame -> session -> archetypes spawned on that frame
	byFrame := make(map[int]map[string][]string)
	for name, ss := range sigs {
		for _, s := range ss {
			if s.Frame >= rep.CommonFrames {
				continue
			}
			if byFrame[s.Frame] == nil {
				byFrame[s.Frame] = make(map[string][]string)
			}
			byFrame[s.Frame][name] = append(byFrame[s.Frame][name], s.Archetype)
		}
	}

	frames := make([]int, 0, len(byFrame))
	for f := range byFrame {
		frames = append(frames, f)
	}
	sort.Ints(frames)

	for _, f := range frames {
		per := make(map[string][]string, len(names))
		for _, name := range names {
			as := slices.Clone(byFrame[f][name])
			sort.Strings(as)
			per[name] = as
		}
		agree := true
		for _, name := range names[1:] {
			if !slices.Equal(per[name], per[names[0]]) {
				agree = false
				break
			}
		}
		if agree {
			rep.ConsistentSpawns++
		} else {
			rep.Conflicts = append(rep.Conflicts, FrameConflict{Frame: f, Archetypes: per})
		}
	}

	return rep
}

func sortSignatures(s []Signature) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Frame != s[j].Frame {
			return s[i].Frame < s[j].Frame
		}
		return s[i].Archetype < s[j].Archetype
	})
}
