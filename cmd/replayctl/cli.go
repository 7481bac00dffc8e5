package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vortexreplay/recorder/internal/api"
	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/influx"
	"github.com/vortexreplay/recorder/internal/logging"
	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/internal/verify"
	"github.com/vortexreplay/recorder/pkg/core"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"verify":       {"FILE...                 check structure, consistency and shared enemy pattern", cmdVerify},
	"compare":      {"ORIGINAL EXECUTED [N]   diff the first N frames of two sessions", cmdCompare},
	"patch-events": {"TEMPLATE FILE...        replace enemy_events, keeping a .backup", cmdPatchEvents},
	"simulate":     {"FILE [-o OUT] [-only A,B] replay headlessly and check it is frame-exact", cmdSimulate},
	"import":       {"[-upload] FILE...       store replays in the configured backend", cmdImport},
	"export":       {"REF OUT                 load a stored replay and write it to OUT", cmdExport},
	"list":         {"                        list stored replays", cmdList},
	"upload":       {"FILE                    upload a replay to the web frontend", cmdUpload},
	"stats":        {"FILE [EVERY]            write session statistics to InfluxDB", cmdStats},
}

var errVerifyFailed = errors.New("verification failed")

// replayName strips directories and the .json / .json.gz extension.
func replayName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".json")
}

func cmdVerify(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: verify needs at least one file", errUsage)
	}

	failed := 0
	docs := make(map[string]core.Document)
	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := replayfile.ReadRaw(path)
		if err != nil {
			fmt.Fprintf(a.out, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		rep := verify.CheckFile(path, data)
		switch {
		case rep.LoadErr != nil:
			fmt.Fprintf(a.out, "FAIL %s: %v\n", path, rep.LoadErr)
			failed++
			continue
		case rep.Consistency != nil:
			fmt.Fprintf(a.out, "FAIL %s:\n", path)
			for _, line := range strings.Split(rep.Consistency.Error(), "\n") {
				fmt.Fprintf(a.out, "     %s\n", line)
			}
			failed++
		default:
			spawns, shoots := rep.Doc.CountEvents()
			fmt.Fprintf(a.out, "OK   %s: %d frames, score %d, stage %d, %d spawns, %d shoots\n",
				path, len(rep.Doc.Frames), rep.Doc.Score, rep.Doc.FinalStage, spawns, shoots)
		}
		if len(rep.MissingStatistics) > 0 {
			fmt.Fprintf(a.out, "WARN %s: statistics missing %s\n", path, strings.Join(rep.MissingStatistics, ", "))
		}
		a.log.Debug("Checked replay", "path", path, "ok", rep.OK())
		docs[replayName(path)] = rep.Doc
	}

	if len(docs) > 1 {
		pr := verify.ComparePatterns(docs)
		fmt.Fprintf(a.out, "\nEnemy pattern across %d replays (first %d frames): %d consistent spawn frames\n",
			len(docs), pr.CommonFrames, pr.ConsistentSpawns)
		for _, m := range pr.Missing {
			fmt.Fprintf(a.out, "  %s has %d spawns missing from %s\n", m.Shorter, len(m.Missing), m.Longer)
			for _, s := range m.Missing {
				fmt.Fprintf(a.out, "    frame %d %s\n", s.Frame, s.Archetype)
			}
		}
		for _, c := range pr.Conflicts {
			fmt.Fprintf(a.out, "  frame %d differs:", c.Frame)
			for name, as := range c.Archetypes {
				fmt.Fprintf(a.out, " %s=%v", name, as)
			}
			fmt.Fprintln(a.out)
		}
		if !pr.OK() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d problem(s)", errVerifyFailed, failed)
	}
	return nil
}

func cmdCompare(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("%w: compare ORIGINAL EXECUTED [N]", errUsage)
	}
	n := verify.DefaultCompareFrames
	if len(args) == 3 {
		v, err := strconv.Atoi(args[2])
		if err != nil || v <= 0 {
			return fmt.Errorf("%w: N must be a positive integer", errUsage)
		}
		n = v
	}

	original, err := replayfile.ReadFile(args[0])
	if err != nil {
		return err
	}
	executed, err := replayfile.ReadFile(args[1])
	if err != nil {
		return err
	}

	c := verify.Compare(original, executed, n)
	t := c.Totals
	fmt.Fprintf(a.out, "%-10s %10s %10s\n", "", "original", "executed")
	fmt.Fprintf(a.out, "%-10s %10d %10d\n", "frames", t.Frames[0], t.Frames[1])
	fmt.Fprintf(a.out, "%-10s %10d %10d\n", "score", t.Score[0], t.Score[1])
	fmt.Fprintf(a.out, "%-10s %10d %10d\n", "events", t.Events[0], t.Events[1])
	fmt.Fprintf(a.out, "%-10s %10d %10d\n\n", "deaths", t.Deaths[0], t.Deaths[1])

	mismatched := 0
	for _, d := range c.Frames {
		mark := ""
		if !d.InputsMatch() {
			mark = "  inputs differ"
			mismatched++
		}
		fmt.Fprintf(a.out, "frame %4d  orig (%.1f, %.1f)  exec (%.1f, %.1f)  delta (%+.1f, %+.1f)  %s / %s%s\n",
			d.Frame, d.OriginalX, d.OriginalY, d.ExecutedX, d.ExecutedY, d.DX(), d.DY(),
			d.OriginalInputs, d.ExecutedInputs, mark)
	}

	if c.EndedEarly > 0 {
		fmt.Fprintf(a.out, "\nexecuted session ended %d frames early\n", c.EndedEarly)
		if c.LastExecuted != nil {
			fmt.Fprintf(a.out, "  last executed frame %d at (%.1f, %.1f), lives %d\n",
				c.LastExecuted.FrameNumber, c.LastExecuted.PlayerX, c.LastExecuted.PlayerY, c.LastExecuted.Lives)
		}
		if c.OriginalAtLastExec != nil {
			fmt.Fprintf(a.out, "  original at that frame (%.1f, %.1f), lives %d\n",
				c.OriginalAtLastExec.PlayerX, c.OriginalAtLastExec.PlayerY, c.OriginalAtLastExec.Lives)
		}
	}
	fmt.Fprintf(a.out, "\nspawn frames original: %v\nspawn frames executed: %v\n", c.OriginalSpawnFrames, c.ExecutedSpawnFrames)

	a.log.Info("Compared replays", "original", args[0], "executed", args[1], "frames", len(c.Frames), "inputMismatches", mismatched)
	return nil
}

func cmdPatchEvents(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: patch-events TEMPLATE FILE...", errUsage)
	}
	events, err := verify.LoadEventPattern(args[0])
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	var errs []error
	for _, path := range args[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := verify.ApplyEventPattern(path, events)
		if err != nil {
			fmt.Fprintf(a.out, "FAIL %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.out, "OK   %s: %d -> %d events", path, res.OldEvents, res.NewEvents)
		if res.Backup != "" {
			fmt.Fprintf(a.out, " (backup %s)", res.Backup)
		}
		fmt.Fprintln(a.out)
		a.log.Info("Patched enemy events", "path", path, "old", res.OldEvents, "new", res.NewEvents)
	}
	return errors.Join(errs...)
}

func cmdSimulate(ctx context.Context, a *app, args []string) error {
	var path, out string
	var only []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			if i+1 >= len(args) {
				return fmt.Errorf("%w: -o needs a path", errUsage)
			}
			i++
			out = args[i]
		case "-only":
			if i+1 >= len(args) {
				return fmt.Errorf("%w: -only needs archetypes", errUsage)
			}
			i++
			only = strings.Split(args[i], ",")
		default:
			if path != "" {
				return fmt.Errorf("%w: simulate takes one file", errUsage)
			}
			path = args[i]
		}
	}
	if path == "" {
		return fmt.Errorf("%w: simulate FILE", errUsage)
	}

	doc, err := replayfile.ReadFileStrict(path)
	if err != nil {
		return err
	}

	a.log.Info("Replaying", "path", path, "frames", len(doc.Frames), "events", len(doc.Events))
	res, err := simulate(ctx, doc, simulateOptions{
		Only:    only,
		Source:  filepath.Base(path),
		Start:   a.start,
		Logger:  logging.NewZerologAdapter(a.zlog),
		OnFrame: func(f int) { a.frame.Store(int64(f)) },
	})
	if err != nil {
		return err
	}

	frames, events := divergence(doc, res.Executed)
	fmt.Fprintf(a.out, "ticks:            %d\n", res.Ticks)
	fmt.Fprintf(a.out, "spawns:           %d dispatched, %d dropped\n", res.Stats.SpawnsDispatched, res.Stats.SpawnsDropped)
	fmt.Fprintf(a.out, "shots:            %d dispatched\n", res.Stats.ShotsDispatched)
	fmt.Fprintf(a.out, "id mismatches:    %d\n", res.IDMismatches)
	fmt.Fprintf(a.out, "diverging frames: %d\n", frames)
	fmt.Fprintf(a.out, "diverging events: %d\n", events)
	if frames == 0 && events == 0 && res.IDMismatches == 0 {
		fmt.Fprintln(a.out, "replay is frame-exact")
	}
	a.log.Info("Replay finished", "ticks", res.Ticks, "divergingFrames", frames, "divergingEvents", events)

	if out != "" {
		if err := replayfile.WriteFile(out, res.Executed, strings.HasSuffix(out, ".gz")); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "wrote %s\n", out)
	}
	return nil
}

func (a *app) openStorage() (storage.Backend, error) {
	return openStorage(config.GetStorageConfig(), config.GetDBConfig(), config.GetAPIConfig(), a.zlog)
}

func closeStorage(a *app, b storage.Backend) {
	if err := b.Close(); err != nil {
		a.log.Error("Failed to close storage backend", "error", err)
	}
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	upload := false
	if len(args) > 0 && args[0] == "-upload" {
		upload = true
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: import [-upload] FILE...", errUsage)
	}

	backend, err := a.openStorage()
	if err != nil {
		return err
	}
	defer closeStorage(a, backend)

	var client *api.Client
	if upload {
		apiCfg := config.GetAPIConfig()
		client = api.New(apiCfg.ServerURL, apiCfg.APIKey)
	}

	var errs []error
	for _, path := range args {
		doc, err := replayfile.ReadFileStrict(path)
		if err != nil {
			fmt.Fprintf(a.out, "FAIL %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		ref, err := backend.Save(ctx, replayName(path), doc)
		if err != nil {
			fmt.Fprintf(a.out, "FAIL %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.out, "OK   %s -> %s\n", path, ref)
		a.log.Info("Imported replay", "path", path, "ref", ref)

		if client == nil {
			continue
		}
		u, ok := backend.(storage.Uploadable)
		if !ok {
			a.log.Warn("Storage backend does not produce uploadable files", "type", config.GetStorageConfig().Type)
			continue
		}
		res, err := client.Upload(ctx, u.GetExportedFilePath(), u.GetExportMetadata())
		if err != nil {
			fmt.Fprintf(a.out, "FAIL upload %s: %v\n", ref, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.out, "     uploaded %s %s\n", ref, res.ID)
	}
	return errors.Join(errs...)
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: export REF OUT", errUsage)
	}
	backend, err := a.openStorage()
	if err != nil {
		return err
	}
	defer closeStorage(a, backend)

	doc, err := backend.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if err := replayfile.WriteFile(args[1], doc, strings.HasSuffix(args[1], ".gz")); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%d frames, %d events)\n", args[1], len(doc.Frames), len(doc.Events))
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	backend, err := a.openStorage()
	if err != nil {
		return err
	}
	defer closeStorage(a, backend)

	summaries, err := backend.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Fprintf(a.out, "%-40s score %7d  stage %2d  frames %6d  %s\n",
			s.Ref, s.Score, s.FinalStage, s.TotalFrames, s.StoredAt.UTC().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(a.out, "%d replay(s)\n", len(summaries))
	return nil
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: upload FILE", errUsage)
	}
	doc, err := replayfile.ReadFileStrict(args[0])
	if err != nil {
		return err
	}

	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("web frontend unreachable: %w", err)
	}
	res, err := client.Upload(ctx, args[0], core.UploadMetadataFor(doc))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %s %s\n", args[0], res.ID)
	a.log.Info("Uploaded replay", "path", args[0], "server", apiCfg.ServerURL, "id", res.ID)
	return nil
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: stats FILE [EVERY]", errUsage)
	}
	every := 0
	if len(args) == 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("%w: EVERY must be a non-negative integer", errUsage)
		}
		every = v
	}

	doc, err := replayfile.ReadFile(args[0])
	if err != nil {
		return err
	}

	m := influx.NewManager(config.GetInfluxConfig(), a.zlog)
	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			a.log.Error("Failed to close InfluxDB manager", "error", err)
		}
	}()

	session := replayName(args[0])
	if err := m.WriteSession(ctx, session, doc); err != nil {
		return err
	}
	points := 1
	if every > 0 {
		n, err := m.WriteTimeline(ctx, session, doc, every)
		if err != nil {
			return err
		}
		points += n
	}

	target := m.ServerURL()
	if !m.Valid() {
		target = m.BackupPath()
	}
	fmt.Fprintf(a.out, "wrote %d point(s) for %s to %s\n", points, session, target)
	return nil
}
