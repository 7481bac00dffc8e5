// Package file stores replays as JSON documents in a directory, optionally
// gzip-compressed for upload to the web frontend.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/pkg/core"
)

// Backend writes one file per saved replay.
type Backend struct {
	cfg config.FileStoreConfig
	now func() time.Time

	mu       sync.Mutex
	lastPath string
	lastMeta core.UploadMetadata
}

// New creates a file backend.
func New(cfg config.FileStoreConfig) *Backend {
	return &Backend{cfg: cfg, now: time.Now}
}

// Init creates the output directory.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// Save writes doc as <name>_<timestamp>.json[.gz] and returns the file name.
func (b *Backend) Save(ctx context.Context, name string, doc core.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	ext := ".json"
	if b.cfg.CompressOutput {
		ext = ".json.gz"
	}
	base := fmt.Sprintf("%s_%s", sanitize(name), b.now().UTC().Format("20060102_150405"))
	filename := base + ext
	for i := 2; fileExists(filepath.Join(b.cfg.OutputDir, filename)); i++ {
		filename = fmt.Sprintf("%s_%d%s", base, i, ext)
	}

	path := filepath.Join(b.cfg.OutputDir, filename)
	if err := replayfile.WriteFile(path, doc, b.cfg.CompressOutput); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.lastPath = path
	b.lastMeta = core.UploadMetadataFor(doc)
	b.mu.Unlock()
	return filename, nil
}

// Load reads a replay by file name. Directory components in ref are ignored.
func (b *Backend) Load(ctx context.Context, ref string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	path := filepath.Join(b.cfg.OutputDir, filepath.Base(ref))
	if !fileExists(path) {
		return core.Document{}, fmt.Errorf("%s: %w", ref, storage.ErrNotFound)
	}
	return replayfile.ReadFile(path)
}

// List decodes every replay file in the output directory, sorted by name.
// Files that fail to decode are skipped.
func (b *Backend) List(ctx context.Context) ([]storage.Summary, error) {
	entries, err := os.ReadDir(b.cfg.OutputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var out []storage.Summary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !isReplayFile(e.Name()) {
			continue
		}
		doc, err := replayfile.ReadFile(filepath.Join(b.cfg.OutputDir, e.Name()))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, storage.Summary{
			Ref:         e.Name(),
			Name:        strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".gz"), ".json"),
			Score:       doc.Score,
			FinalStage:  doc.FinalStage,
			TotalFrames: doc.Statistics.TotalFrames,
			StoredAt:    info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

// GetExportedFilePath returns the path of the last saved replay.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPath
}

// GetExportMetadata returns upload metadata of the last saved replay.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMeta
}

func isReplayFile(name string) bool {
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// sanitize keeps names safe for every filesystem the recorder runs on.
func sanitize(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	if s == "" {
		return "replay"
	}
	return s
}
