package replayfile

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	eventTypeSpawn = "enemy_spawn"
	eventTypeShoot = "enemy_shoot"
)

// required top-level keys, in the order they are checked
var requiredFields = []string{"metadata", "score", "final_stage", "statistics", "frames", "enemy_events"}

type wireDocument struct {
	Metadata    map[string]any `json:"metadata"`
	Score       int            `json:"score"`
	FinalStage  int            `json:"final_stage"`
	Statistics  wireStatistics `json:"statistics"`
	Frames      []wireFrame    `json:"frames"`
	EnemyEvents []wireEvent    `json:"enemy_events"`
}

type wireStatistics struct {
	TotalFrames      int     `json:"total_frames"`
	PlayDuration     float64 `json:"play_duration"`
	EnemiesDestroyed int     `json:"enemies_destroyed"`
	ShotsFired       int     `json:"shots_fired"`
	Hits             int     `json:"hits"`
	Deaths           int     `json:"deaths"`
}

type wireFrame struct {
	FrameNumber   int     `json:"frame_number"`
	PlayerX       float64 `json:"player_x"`
	PlayerY       float64 `json:"player_y"`
	PlayerLives   int     `json:"player_lives"`
	PlayerScore   int     `json:"player_score"`
	CurrentWeapon int     `json:"current_weapon"`
	InputLeft     bit     `json:"input_left"`
	InputRight    bit     `json:"input_right"`
	InputUp       bit     `json:"input_up"`
	InputDown     bit     `json:"input_down"`
	InputButton1  bit     `json:"input_button1"`
	InputButton2  bit     `json:"input_button2"`
	StageNum      int     `json:"stage_num"`
	Timestamp     float64 `json:"timestamp"`
}

type wireEvent struct {
	EventType string   `json:"event_type"`
	Frame     int      `json:"frame"`
	EnemyID   int      `json:"enemy_id"`
	EnemyType string   `json:"enemy_type,omitempty"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	VX        *float64 `json:"vx,omitempty"`
	VY        *float64 `json:"vy,omitempty"`
	Delay     *int     `json:"delay,omitempty"`
	ScrollX   *float64 `json:"scroll_x,omitempty"`
}

// bit is a button flag written as 0/1. Older exports used JSON booleans,
// so both forms are accepted on read.
type bit bool

func (b bit) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (b *bit) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		return nil
	case "true":
		*b = true
		return nil
	case "false":
		*b = false
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("input flag: %w", err)
	}
	*b = n != 0
	return nil
}
