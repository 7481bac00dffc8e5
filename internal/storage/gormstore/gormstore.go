// Package gormstore archives replays in SQLite or Postgres through gorm.
// Save only queues; a writer goroutine inserts on every flush interval.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vortexreplay/recorder/internal/database"
	"github.com/vortexreplay/recorder/internal/model"
	"github.com/vortexreplay/recorder/internal/queue"
	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/pkg/core"
)

const defaultFlushInterval = 2 * time.Second

// Config holds writer settings.
type Config struct {
	FlushInterval time.Duration
}

// Backend implements storage.Backend on a gorm connection it owns.
type Backend struct {
	db  *gorm.DB
	cfg Config
	log zerolog.Logger

	pending *queue.Queue[model.Replay]

	// writeMu serialises flushes between the writer loop and callers.
	writeMu sync.Mutex

	mu       sync.Mutex
	queued   map[string]struct{}
	stopChan chan struct{}
	stopped  chan struct{}
}

// New wraps db. The backend closes db on Close.
func New(db *gorm.DB, cfg Config, log zerolog.Logger) *Backend {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		db:      db,
		cfg:     cfg,
		log:     log.With().Str("component", "gormstore").Str("dialect", db.Dialector.Name()).Logger(),
		pending: queue.New[model.Replay](),
		queued:  make(map[string]struct{}),
	}
}

// Init migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if err := database.Migrate(b.db, b.log); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.stopChan = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer, flushes what is left and closes the connection.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.stopped
		b.stopChan = nil
	}
	flushErr := b.Flush()
	return errors.Join(flushErr, database.Close(b.db))
}

// Save queues doc under name, which is also the returned reference.
func (b *Backend) Save(ctx context.Context, name string, doc core.Document) (string, error) {
	if name == "" {
		return "", fmt.Errorf("replay name is empty")
	}
	encoded, err := replayfile.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode replay: %w", err)
	}
	row, err := model.NewReplay(name, doc, encoded)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queued[name]; ok {
		return "", fmt.Errorf("%s: %w", name, storage.ErrExists)
	}
	var n int64
	if err := b.db.WithContext(ctx).Model(&model.Replay{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return "", fmt.Errorf("failed to check replay name: %w", err)
	}
	if n > 0 {
		return "", fmt.Errorf("%s: %w", name, storage.ErrExists)
	}

	b.queued[name] = struct{}{}
	b.pending.Push(row)
	return name, nil
}

// Load returns the stored document. Replays still queued are flushed first.
func (b *Backend) Load(ctx context.Context, ref string) (core.Document, error) {
	b.mu.Lock()
	_, queued := b.queued[ref]
	b.mu.Unlock()
	if queued {
		if err := b.Flush(); err != nil {
			return core.Document{}, err
		}
	}

	var row model.Replay
	err := b.db.WithContext(ctx).Select("document").Where("name = ?", ref).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Document{}, fmt.Errorf("%s: %w", ref, storage.ErrNotFound)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to load replay: %w", err)
	}
	return replayfile.Unmarshal(row.Document)
}

// List returns persisted replays, best score first.
func (b *Backend) List(ctx context.Context) ([]storage.Summary, error) {
	var rows []model.Replay
	err := b.db.WithContext(ctx).
		Select("name", "score", "final_stage", "total_frames", "created_at").
		Order("score DESC").Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list replays: %w", err)
	}
	out := make([]storage.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.Summary{
			Ref:         r.Name,
			Name:        r.Name,
			Score:       r.Score,
			FinalStage:  r.FinalStage,
			TotalFrames: r.TotalFrames,
			StoredAt:    r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// Pending returns the number of queued replays.
func (b *Backend) Pending() int {
	return b.pending.Len()
}

// Flush writes all queued replays. Failed rows are requeued.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	rows := b.pending.Drain()
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	var failed []model.Replay
	var errs []error
	for i := range rows {
		row := rows[i]
		err := b.db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&row).Error
		})
		if err != nil {
			failed = append(failed, rows[i])
			errs = append(errs, fmt.Errorf("%s: %w", rows[i].Name, err))
			continue
		}
		b.mu.Lock()
		delete(b.queued, row.Name)
		b.mu.Unlock()
	}

	if len(failed) > 0 {
		b.pending.Requeue(failed...)
		err := errors.Join(errs...)
		b.log.Error().Err(err).Int("failed", len(failed)).Msg("Error writing replays")
		return fmt.Errorf("failed to write replays: %w", err)
	}

	b.log.Debug().Int("count", len(rows)).Dur("duration", time.Since(start)).Msg("Wrote replays")
	return nil
}

func (b *Backend) writeLoop() {
	defer close(b.stopped)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged and rows stay queued for the next tick
			_ = b.Flush()
		}
	}
}
