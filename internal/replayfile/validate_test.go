package replayfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexreplay/recorder/pkg/core"
)

func framesN(n int) []core.FrameRecord {
	out := make([]core.FrameRecord, n)
	for i := range out {
		out[i] = core.NewFrameRecord(i, core.Snapshot{})
	}
	return out
}

func TestValidate_Consistent(t *testing.T) {
	doc := core.Document{
		Frames: framesN(5),
		Events: []core.GameEvent{
			core.NewSpawnEvent(1, 0, "EnemyA", 0, 0),
			core.NewShootEvent(1, 0, 0, 0, 1, 0, 0),
			core.NewShootEvent(4, 0, 0, 0, 1, 0, 0),
		},
	}
	assert.NoError(t, Validate(doc))
	assert.NoError(t, Validate(core.Document{}))
}

func TestValidate_FrameGap(t *testing.T) {
	frames := framesN(4)
	frames[2].FrameNumber = 5
	frames[3].FrameNumber = 6

	err := Validate(core.Document{Frames: frames})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameGap)
	assert.Contains(t, err.Error(), "frames[2]")
}

func TestValidate_DanglingShoot(t *testing.T) {
	tests := []struct {
		name   string
		events []core.GameEvent
		index  int
	}{
		{
			name:   "never spawned",
			events: []core.GameEvent{core.NewShootEvent(3, 7, 0, 0, 0, 1, 0)},
			index:  0,
		},
		{
			name: "spawned later",
			events: []core.GameEvent{
				core.NewShootEvent(2, 1, 0, 0, 0, 1, 0),
				core.NewSpawnEvent(5, 1, "EnemyA", 0, 0),
			},
			index: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(core.Document{Frames: framesN(10), Events: tt.events})
			var dangling *DanglingShootError
			require.ErrorAs(t, err, &dangling)
			assert.Equal(t, tt.index, dangling.Index)
		})
	}
}

func TestValidate_JoinsViolations(t *testing.T) {
	frames := framesN(3)
	frames[1].FrameNumber = 9

	doc := core.Document{
		Frames: frames,
		Events: []core.GameEvent{
			core.NewSpawnEvent(0, 0, "EnemyA", 0, 0),
			core.NewSpawnEvent(1, 0, "EnemyB", 0, 0),
			core.NewSpawnEvent(-1, 1, "EnemyC", 0, 0),
			core.NewShootEvent(0, 2, 0, 0, 0, 0, 0),
		},
	}

	err := Validate(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameGap)
	assert.ErrorIs(t, err, ErrDuplicateSpawn)
	assert.ErrorIs(t, err, ErrNegativeFrame)

	var dangling *DanglingShootError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, 2, dangling.EntityID)
}
