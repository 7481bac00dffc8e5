package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexreplay/recorder/internal/database"
	"github.com/vortexreplay/recorder/internal/model"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func sampleDoc(score int) core.Document {
	return core.Document{
		Metadata:   map[string]any{"seed": "abc"},
		Score:      score,
		FinalStage: 1,
		Statistics: core.Statistics{TotalFrames: 3, PlayDuration: 0.1, ShotsFired: 4},
		Frames: []core.FrameRecord{
			core.NewFrameRecord(0, core.Snapshot{PlayerX: 0, PlayerY: 0, Lives: 3}),
			core.NewFrameRecord(1, core.Snapshot{PlayerX: 3, PlayerY: 4, Lives: 3, Inputs: core.NewButtonSet(core.ButtonUp)}),
			core.NewFrameRecord(2, core.Snapshot{PlayerX: 3, PlayerY: 4, Lives: 2}),
		},
		Events: []core.GameEvent{
			core.NewSpawnEvent(0, 0, "EnemyA", 100, 50),
			core.NewShootEvent(2, 0, 98, 52, -1, 0, 0),
		},
	}
}

// newTestBackend uses a private in-memory SQLite database and a flush
// interval long enough that only explicit flushes write.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite(database.MemoryPath, zerolog.Nop())
	require.NoError(t, err)

	b := New(db, Config{FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew_DefaultFlushInterval(t *testing.T) {
	db, err := database.OpenSQLite(database.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	b := New(db, Config{}, zerolog.Nop())
	assert.Equal(t, defaultFlushInterval, b.cfg.FlushInterval)
	require.NoError(t, database.Close(db))
}

func TestSave_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	ref, err := b.Save(ctx, "run-1", sampleDoc(100))
	require.NoError(t, err)
	assert.Equal(t, "run-1", ref)
	assert.Equal(t, 1, b.Pending())

	var n int64
	require.NoError(t, b.db.Model(&model.Replay{}).Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, b.Flush())
	assert.Zero(t, b.Pending())
	require.NoError(t, b.db.Model(&model.Replay{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	require.NoError(t, b.db.Model(&model.ReplayEvent{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	doc := sampleDoc(250)

	_, err := b.Save(ctx, "run-1", doc)
	require.NoError(t, err)

	// Load flushes queued replays itself
	got, err := b.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Score, got.Score)
	assert.Equal(t, doc.Statistics, got.Statistics)
	assert.Equal(t, doc.Frames, got.Frames)
	assert.Equal(t, doc.Events, got.Events)
	assert.Equal(t, "abc", got.Metadata["seed"])
}

func TestSave_StoresDerivedColumns(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Save(context.Background(), "run-1", sampleDoc(250))
	require.NoError(t, err)
	require.NoError(t, b.Flush())

	var row model.Replay
	require.NoError(t, b.db.Where("name = ?", "run-1").First(&row).Error)
	assert.Equal(t, 250, row.Score)
	assert.Equal(t, 3, row.TotalFrames)
	assert.Equal(t, 4, row.ShotsFired)
	assert.Equal(t, 1, row.SpawnEvents)
	assert.Equal(t, 1, row.ShootEvents)
	assert.InDelta(t, 5.0, row.PathLength, 1e-9)

	pts, err := model.DecodePlayerPath(row.PlayerPath)
	require.NoError(t, err)
	assert.Len(t, pts, 3)
}

func TestSave_DuplicateName(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Save(ctx, "run-1", sampleDoc(1))
	require.NoError(t, err)

	// while queued
	_, err = b.Save(ctx, "run-1", sampleDoc(2))
	assert.ErrorIs(t, err, storage.ErrExists)

	// once persisted
	require.NoError(t, b.Flush())
	_, err = b.Save(ctx, "run-1", sampleDoc(3))
	assert.ErrorIs(t, err, storage.ErrExists)
}

func TestSave_EmptyName(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Save(context.Background(), "", sampleDoc(1))
	assert.Error(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestList_OrderedByScore(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for name, score := range map[string]int{"low": 10, "high": 900, "mid": 300} {
		_, err := b.Save(ctx, name, sampleDoc(score))
		require.NoError(t, err)
	}
	require.NoError(t, b.Flush())

	list, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{list[0].Ref, list[1].Ref, list[2].Ref})
	assert.Equal(t, 3, list[0].TotalFrames)
	assert.False(t, list[0].StoredAt.IsZero())
}

func TestWriteLoop_FlushesOnInterval(t *testing.T) {
	db, err := database.OpenSQLite(database.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	b := New(db, Config{FlushInterval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, b.Init())
	defer b.Close()

	_, err = b.Save(context.Background(), "run-1", sampleDoc(1))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestClose_FlushesPending(t *testing.T) {
	path := t.TempDir() + "/archive.db"
	db, err := database.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	b := New(db, Config{FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, b.Init())

	_, err = b.Save(context.Background(), "run-1", sampleDoc(42))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	db2, err := database.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	b2 := New(db2, Config{FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, b2.Init())
	defer b2.Close()

	doc, err := b2.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 42, doc.Score)
}
