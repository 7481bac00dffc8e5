package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/recorder"
	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/internal/storage/file"
	"github.com/vortexreplay/recorder/internal/storage/gormstore"
	wsstorage "github.com/vortexreplay/recorder/internal/storage/websocket"
	"github.com/vortexreplay/recorder/pkg/core"
)

// sessionDoc records a short session with two enemy types, a scrolled spawn
// and shots from both emitters.
func sessionDoc(t *testing.T) core.Document {
	t.Helper()
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	ticks := 0
	rec := recorder.New(recorder.WithClock(func() time.Time {
		return start.Add(time.Duration(ticks) * time.Second / core.TickRate)
	}))
	rec.Start()
	for tick := 0; tick < 12; tick++ {
		switch tick {
		case 2:
			rec.NoteSpawn("EnemyA", 100, 40)
		case 3:
			rec.NoteSpawnScrolled("EnemyB", 220, 60, -32)
			rec.NoteShoot(0, 100, 40, -2, 0, 0)
		case 7:
			rec.NoteShoot(1, 220, 60, -1, 1, 5)
			rec.NoteShoot(0, 98, 40, -2, 0, 0)
		case 9:
			rec.NoteSpawn("EnemyA", 300, 20)
		}
		held := core.NewButtonSet(core.ButtonRight)
		if tick%3 == 0 {
			held = held.With(core.ButtonPrimary, true)
		}
		rec.RecordTick(core.Snapshot{PlayerX: float64(tick * 4), PlayerY: 200, Lives: 3, Score: tick * 5, Stage: 1, Inputs: held})
		ticks++
	}
	rec.AddShotFired()
	rec.AddEnemyDestroyed()
	rec.Stop()
	return rec.Export(55, 1)
}

func writeReplay(t *testing.T, dir, name string, doc core.Document) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, replayfile.WriteFile(path, doc, strings.HasSuffix(name, ".gz")))
	return path
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		configDir string
		cmd       string
		rest      []string
		wantErr   bool
	}{
		{"command only", []string{"verify", "a.json"}, ".", "verify", []string{"a.json"}, false},
		{"config flag", []string{"-config", "/etc/replay", "list"}, "/etc/replay", "list", []string{}, false},
		{"config equals", []string{"--config=/tmp/x", "VERIFY", "a"}, "/tmp/x", "verify", []string{"a"}, false},
		{"help", []string{"-h"}, ".", "help", nil, false},
		{"missing config value", []string{"-config"}, "", "", nil, true},
		{"unknown flag", []string{"-v", "list"}, "", "", nil, true},
		{"no command", []string{"-config", "dir"}, "dir", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, cmd, rest, err := parseArgs(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUsage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.configDir, dir)
			assert.Equal(t, tt.cmd, cmd)
			if tt.rest != nil {
				assert.Equal(t, tt.rest, rest)
			}
		})
	}
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://localhost:5000", httpToWS("http://localhost:5000/"))
	assert.Equal(t, "wss://replays.example.org", httpToWS("https://replays.example.org"))
}

func TestReplayName(t *testing.T) {
	assert.Equal(t, "run_01", replayName("/data/run_01.json.gz"))
	assert.Equal(t, "run_02", replayName("run_02.json"))
	assert.Equal(t, "notes.txt", replayName("notes.txt"))
}

func TestCreateStorageBackend(t *testing.T) {
	dir := t.TempDir()
	apiCfg := config.APIConfig{ServerURL: "https://replays.example.org", APIKey: "k"}

	b, err := createStorageBackend(config.StorageConfig{Type: "file", File: config.FileStoreConfig{OutputDir: dir}}, config.DBConfig{}, apiCfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &file.Backend{}, b)

	b, err = createStorageBackend(config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "db", "replays.db")}}, config.DBConfig{}, apiCfg, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &gormstore.Backend{}, b)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	b, err = createStorageBackend(config.StorageConfig{Type: "websocket"}, config.DBConfig{}, apiCfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &wsstorage.Backend{}, b)

	_, err = createStorageBackend(config.StorageConfig{Type: "s3"}, config.DBConfig{}, apiCfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestCreateStorageBackend_PostgresFallsBackToSQLite(t *testing.T) {
	db := config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d"}
	cfg := config.StorageConfig{Type: "postgres", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "fallback.db")}}

	b, err := createStorageBackend(cfg, db, config.APIConfig{}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &gormstore.Backend{}, b)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}

func TestSimulate_FrameExact(t *testing.T) {
	doc := sessionDoc(t)
	var frames []int

	res, err := simulate(context.Background(), doc, simulateOptions{
		Source:  "session.json",
		Start:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		OnFrame: func(f int) { frames = append(frames, f) },
	})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Ticks)
	assert.Equal(t, 3, res.Stats.SpawnsDispatched)
	assert.Equal(t, 3, res.Stats.ShotsDispatched)
	assert.Zero(t, res.Stats.SpawnsDropped)
	assert.Zero(t, res.IDMismatches)
	assert.Len(t, frames, 12)
	assert.Equal(t, 11, frames[11])

	f, e := divergence(doc, res.Executed)
	assert.Zero(t, f)
	assert.Zero(t, e)

	assert.Equal(t, doc.Score, res.Executed.Score)
	assert.Equal(t, 12, res.Executed.Statistics.TotalFrames)
	assert.InDelta(t, 12.0/core.TickRate, res.Executed.Statistics.PlayDuration, 1e-9)
	assert.Equal(t, doc.Statistics.ShotsFired, res.Executed.Statistics.ShotsFired)
	assert.Equal(t, "session.json", res.Executed.Metadata[MetadataReplayedFrom])
	assert.Equal(t, "2026-03-15T00:00:00Z", res.Executed.Metadata[recorder.MetadataRecordedAt])
}

func TestSimulate_UnregisteredArchetypeDiverges(t *testing.T) {
	doc := sessionDoc(t)

	res, err := simulate(context.Background(), doc, simulateOptions{Only: []string{"EnemyA"}})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Ticks)
	assert.Equal(t, 2, res.Stats.SpawnsDispatched)
	assert.Equal(t, 1, res.Stats.SpawnsDropped)
	// EnemyB never spawns, so the later EnemyA gets id 1 instead of 2
	assert.Equal(t, 1, res.IDMismatches)

	f, e := divergence(doc, res.Executed)
	assert.Zero(t, f)
	assert.NotZero(t, e)
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := simulate(ctx, sessionDoc(t), simulateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSameEvent(t *testing.T) {
	a := core.NewSpawnEvent(1, 0, "EnemyA", 1, 2)
	b := a.Clone()
	assert.True(t, sameEvent(a, b))

	scroll := 4.0
	b.Spawn.ScrollX = &scroll
	assert.False(t, sameEvent(a, b))

	s1 := core.NewShootEvent(2, 0, 1, 1, 0, 1, 0)
	s2 := core.NewShootEvent(2, 0, 1, 1, 0, 1, 3)
	assert.False(t, sameEvent(s1, s2))
	assert.False(t, sameEvent(a, s1))
}

// testConfigDir writes a config that keeps logs and stored replays in a temp dir.
func testConfigDir(t *testing.T) (configDir, outputDir string) {
	t.Helper()
	t.Cleanup(viper.Reset)

	configDir = t.TempDir()
	outputDir = filepath.Join(configDir, "replays")
	cfg := map[string]any{
		"logLevel": "error",
		"logsDir":  filepath.Join(configDir, "logs"),
		"storage": map[string]any{
			"type": "file",
			"file": map[string]any{"outputDir": outputDir, "compressOutput": false},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, config.FileName), data, 0644))
	return configDir, outputDir
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), args, &out)
	return code, out.String()
}

func TestRun_HelpAndUnknown(t *testing.T) {
	code, out := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "patch-events")

	code, out = runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, CurrentVersion)

	code, _ = runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)

	code, _ = runCLI(t)
	assert.Equal(t, 2, code)
}

func TestRun_Verify(t *testing.T) {
	configDir, _ := testConfigDir(t)
	dir := t.TempDir()
	doc := sessionDoc(t)
	a := writeReplay(t, dir, "a.json", doc)
	b := writeReplay(t, dir, "b.json.gz", doc)

	code, out := runCLI(t, "-config", configDir, "verify", a, b)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "OK   "+a)
	assert.Contains(t, out, "3 spawns, 3 shoots")
	assert.Contains(t, out, "Enemy pattern across 2 replays")

	broken := doc.Clone()
	broken.Events = append(broken.Events, core.NewShootEvent(4, 42, 0, 0, 0, 0, 0))
	c := writeReplay(t, dir, "c.json", broken)
	code, out = runCLI(t, "-config", configDir, "verify", c)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FAIL "+c)
	assert.Contains(t, out, "entity 42")

	code, _ = runCLI(t, "-config", configDir, "verify")
	assert.Equal(t, 2, code)
}

func TestRun_SimulateThenCompare(t *testing.T) {
	configDir, _ := testConfigDir(t)
	dir := t.TempDir()
	original := writeReplay(t, dir, "orig.json", sessionDoc(t))
	executed := filepath.Join(dir, "exec.json.gz")

	code, out := runCLI(t, "-config", configDir, "simulate", original, "-o", executed)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "replay is frame-exact")
	assert.FileExists(t, executed)

	code, out = runCLI(t, "-config", configDir, "compare", original, executed, "5")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "frame    4")
	assert.NotContains(t, out, "inputs differ")
	assert.NotContains(t, out, "ended")

	code, _ = runCLI(t, "-config", configDir, "compare", original, executed, "zero")
	assert.Equal(t, 2, code)
}

func TestRun_PatchEvents(t *testing.T) {
	configDir, _ := testConfigDir(t)
	dir := t.TempDir()
	target := writeReplay(t, dir, "target.json", sessionDoc(t))

	pattern := []core.GameEvent{core.NewSpawnEvent(1, 0, "EnemyZ", 5, 5)}
	data, err := replayfile.MarshalEvents(pattern)
	require.NoError(t, err)
	template := filepath.Join(dir, "pattern.json")
	require.NoError(t, os.WriteFile(template, data, 0644))

	code, out := runCLI(t, "-config", configDir, "patch-events", template, target)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "6 -> 1 events")
	assert.FileExists(t, target+".backup")

	doc, err := replayfile.ReadFile(target)
	require.NoError(t, err)
	require.Len(t, doc.Events, 1)
	assert.Equal(t, "EnemyZ", doc.Events[0].Spawn.Archetype)
}

func TestRun_ImportListExport(t *testing.T) {
	configDir, outputDir := testConfigDir(t)
	dir := t.TempDir()
	doc := sessionDoc(t)
	src := writeReplay(t, dir, "night run.json", doc)

	code, out := runCLI(t, "-config", configDir, "import", src)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "OK   "+src)

	summaries, err := file.New(config.FileStoreConfig{OutputDir: outputDir}).List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	ref := summaries[0].Ref

	code, out = runCLI(t, "-config", configDir, "list")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, ref)
	assert.Contains(t, out, "1 replay(s)")

	exported := filepath.Join(dir, "exported.json")
	code, out = runCLI(t, "-config", configDir, "export", ref, exported)
	require.Equal(t, 0, code, out)

	got, err := replayfile.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, doc.Frames, got.Frames)
	assert.Equal(t, doc.Events, got.Events)

	code, _ = runCLI(t, "-config", configDir, "export", "missing.json", exported)
	assert.Equal(t, 1, code)
}

func TestRun_StatsDisabled(t *testing.T) {
	configDir, _ := testConfigDir(t)
	src := writeReplay(t, t.TempDir(), "s.json", sessionDoc(t))

	code, out := runCLI(t, "-config", configDir, "stats", src)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "disabled")
}
