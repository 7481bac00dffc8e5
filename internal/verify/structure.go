// Package verify holds the offline checks run over stored replays: per-file
// structure and consistency, spawn-pattern agreement across files, and
// frame-by-frame comparison of two sessions.
package verify

import (
	"encoding/json"

	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/pkg/core"
)

var statisticsFields = []string{"total_frames", "play_duration", "enemies_destroyed", "shots_fired", "hits", "deaths"}

// FileReport is the outcome of checking one replay.
type FileReport struct {
	Name string
	Doc  core.Document

	// LoadErr is set when the document could not be decoded at all.
	LoadErr error
	// Consistency holds the joined replayfile.Validate violations.
	Consistency error
	// MissingStatistics lists statistics sub-fields absent from the file.
	// They decode as zero, so this is a warning rather than a failure.
	MissingStatistics []string
}

// OK reports whether the file loaded and is consistent.
func (r FileReport) OK() bool {
	return r.LoadErr == nil && r.Consistency == nil
}

// CheckFile decodes and validates raw replay JSON.
func CheckFile(name string, data []byte) FileReport {
	rep := FileReport{Name: name}

	doc, err := replayfile.Unmarshal(data)
	if err != nil {
		rep.LoadErr = err
		return rep
	}
	rep.Doc = doc
	rep.Consistency = replayfile.Validate(doc)
	rep.MissingStatistics = missingStatistics(data)
	return rep
}

func missingStatistics(data []byte) []string {
	var top struct {
		Statistics map[string]json.RawMessage `json:"statistics"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil
	}
	var missing []string
	for _, f := range statisticsFields {
		if _, ok := top.Statistics[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
