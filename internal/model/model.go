// Package model holds the gorm schema of the replay archive.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/vortexreplay/recorder/pkg/core"
)

// DatabaseModels lists every table migrated by the archive stores.
var DatabaseModels = []interface{}{
	&Replay{},
	&ReplayEvent{},
}

// Replay is one archived session. Document holds the full wire-format JSON;
// the remaining columns are denormalised for listing and querying.
type Replay struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name" gorm:"size:255;uniqueIndex"`

	Score      int `json:"score" gorm:"index"`
	FinalStage int `json:"finalStage"`

	TotalFrames      int     `json:"totalFrames"`
	PlayDuration     float64 `json:"playDuration"`
	EnemiesDestroyed int     `json:"enemiesDestroyed"`
	ShotsFired       int     `json:"shotsFired"`
	Hits             int     `json:"hits"`
	Deaths           int     `json:"deaths"`
	SpawnEvents      int     `json:"spawnEvents"`
	ShootEvents      int     `json:"shootEvents"`

	Metadata datatypes.JSONMap `json:"metadata"`
	Document datatypes.JSON    `json:"-"`

	// PlayerPath is the player trajectory as WKB LineString, empty for
	// sessions with fewer than two frames.
	PlayerPath []byte  `json:"-"`
	PathLength float64 `json:"pathLength"`

	Events []ReplayEvent `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Replay) TableName() string {
	return "replays"
}

// ReplayEvent indexes the event log so archives can be queried by frame
// and archetype without decoding documents.
type ReplayEvent struct {
	ID        uint    `json:"id" gorm:"primarykey"`
	ReplayID  uint    `json:"replayId" gorm:"index:idx_replay_event_frame,priority:1"`
	Frame     int     `json:"frame" gorm:"index:idx_replay_event_frame,priority:2"`
	Kind      string  `json:"kind" gorm:"size:16"`
	EntityID  int     `json:"entityId"`
	Archetype string  `json:"archetype" gorm:"size:64"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (*ReplayEvent) TableName() string {
	return "replay_events"
}

// NewReplay builds a row from a session. encoded is the document's wire
// JSON, stored verbatim so Load returns exactly what was saved.
func NewReplay(name string, doc core.Document, encoded []byte) (Replay, error) {
	meta := datatypes.JSONMap{}
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	// round trip so non-JSON values fail here rather than on insert
	if _, err := json.Marshal(meta); err != nil {
		return Replay{}, fmt.Errorf("metadata is not JSON encodable: %w", err)
	}

	path, length := PlayerPath(doc.Frames)
	spawns, shoots := doc.CountEvents()

	r := Replay{
		Name:             name,
		Score:            doc.Score,
		FinalStage:       doc.FinalStage,
		TotalFrames:      doc.Statistics.TotalFrames,
		PlayDuration:     doc.Statistics.PlayDuration,
		EnemiesDestroyed: doc.Statistics.EnemiesDestroyed,
		ShotsFired:       doc.Statistics.ShotsFired,
		Hits:             doc.Statistics.Hits,
		Deaths:           doc.Statistics.Deaths,
		SpawnEvents:      spawns,
		ShootEvents:      shoots,
		Metadata:         meta,
		Document:         datatypes.JSON(encoded),
		PlayerPath:       path,
		PathLength:       length,
	}
	for _, e := range doc.Events {
		r.Events = append(r.Events, newReplayEvent(e))
	}
	return r, nil
}

func newReplayEvent(e core.GameEvent) ReplayEvent {
	re := ReplayEvent{Frame: e.Frame, EntityID: e.EntityID}
	switch e.Kind {
	case core.EventSpawn:
		re.Kind = "spawn"
		if e.Spawn != nil {
			re.Archetype = e.Spawn.Archetype
			re.X, re.Y = e.Spawn.X, e.Spawn.Y
		}
	case core.EventShoot:
		re.Kind = "shoot"
		if e.Shoot != nil {
			re.X, re.Y = e.Shoot.X, e.Shoot.Y
		}
	}
	return re
}

// PlayerPath encodes the player positions as a WKB LineString and returns
// its length in screen units.
func PlayerPath(frames []core.FrameRecord) ([]byte, float64) {
	if len(frames) < 2 {
		return nil, 0
	}
	coords := make([]float64, 0, len(frames)*2)
	for _, f := range frames {
		coords = append(coords, f.PlayerX, f.PlayerY)
	}
	ls := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	return ls.AsBinary(), ls.Length()
}

// DecodePlayerPath parses a stored WKB path back into x/y pairs.
func DecodePlayerPath(wkb []byte) ([][2]float64, error) {
	if len(wkb) == 0 {
		return nil, nil
	}
	g, err := geom.UnmarshalWKB(wkb)
	if err != nil {
		return nil, fmt.Errorf("decode player path: %w", err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil, fmt.Errorf("decode player path: expected LineString, got %s", g.Type())
	}
	seq := ls.Coordinates()
	out := make([][2]float64, seq.Length())
	for i := range out {
		xy := seq.GetXY(i)
		out[i] = [2]float64{xy.X, xy.Y}
	}
	return out, nil
}
