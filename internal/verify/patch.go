package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/pkg/core"
)

// BackupSuffix is appended to a replay's path for the copy kept by ApplyEventPattern.
const BackupSuffix = ".backup"

// PatchResult describes one ApplyEventPattern run.
type PatchResult struct {
	Path      string
	OldEvents int
	NewEvents int
	// Backup is the backup path written on this run, empty if one already existed.
	Backup string
}

// LoadEventPattern reads a bare enemy_events array from path.
func LoadEventPattern(path string) ([]core.GameEvent, error) {
	data, err := replayfile.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	events, err := replayfile.UnmarshalEvents(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// ApplyEventPattern replaces the enemy_events of the replay at path with
// events, so sessions played against one stage share an identical enemy
// pattern. Every other field is kept as stored. The pre-patch file is copied
// to path+BackupSuffix unless a backup already exists. Compression of the
// original file is preserved.
func ApplyEventPattern(path string, events []core.GameEvent) (PatchResult, error) {
	res := PatchResult{Path: path, NewEvents: len(events)}

	orig, err := replayfile.ReadRaw(path)
	if err != nil {
		return res, err
	}
	compressed, err := replayfile.IsGzip(path)
	if err != nil {
		return res, fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(orig, &top); err != nil || top == nil {
		return res, fmt.Errorf("%s: %w", path, replayfile.ErrMalformed)
	}
	var old []json.RawMessage
	if raw, ok := top["enemy_events"]; ok {
		_ = json.Unmarshal(raw, &old)
	}
	res.OldEvents = len(old)

	encoded, err := replayfile.MarshalEvents(events)
	if err != nil {
		return res, fmt.Errorf("failed to encode events: %w", err)
	}
	top["enemy_events"] = encoded

	patched, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return res, fmt.Errorf("failed to encode replay: %w", err)
	}
	// refuse to write something the loader would reject
	if _, err := replayfile.Unmarshal(patched); err != nil {
		return res, fmt.Errorf("%s: patched document invalid: %w", path, err)
	}

	backup := path + BackupSuffix
	if _, err := os.Stat(backup); errors.Is(err, os.ErrNotExist) {
		if err := replayfile.WriteRaw(backup, orig, compressed); err != nil {
			return res, fmt.Errorf("failed to write backup: %w", err)
		}
		res.Backup = backup
	} else if err != nil {
		return res, fmt.Errorf("failed to stat backup: %w", err)
	}

	if err := replayfile.WriteRaw(path, patched, compressed); err != nil {
		return res, err
	}
	return res, nil
}
