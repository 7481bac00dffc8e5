// Package influx exports per-session player statistics to InfluxDB, with a
// gzip line protocol file as fallback when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/recorder"
	"github.com/vortexreplay/recorder/pkg/core"
)

const (
	// BucketPlayerPerformance receives one point per finished session.
	BucketPlayerPerformance = "player_performance"
	// BucketSessionTimeline receives sampled per-frame player state.
	BucketSessionTimeline = "session_timeline"

	MeasurementSessionStats = "session_stats"
	MeasurementFrameState   = "frame_state"

	retentionSeconds = 60 * 60 * 24 * 90
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{
	BucketPlayerPerformance,
	BucketSessionTimeline,
}

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx export is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg         config.InfluxConfig
	log         zerolog.Logger
	bucketNames []string

	client  influxdb2.Client
	writers map[string]influxdb2_api.WriteAPI
	valid   bool

	mu           sync.Mutex
	backupFile   *os.File
	backupWriter *gzip.Writer
	backupPath   string
}

// NewManager creates a manager; nothing is dialled until Connect.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		log:         log.With().Str("component", "influx").Logger(),
		bucketNames: DefaultBucketNames,
		writers:     make(map[string]influxdb2_api.WriteAPI),
	}
}

// ServerURL renders protocol, host and port.
func (m *Manager) ServerURL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// Valid reports whether points go to the server rather than the backup file.
func (m *Manager) Valid() bool {
	return m.valid
}

// BackupPath returns the fallback file, empty while the server is in use.
func (m *Manager) BackupPath() string {
	return m.backupPath
}

// Connect pings the server and prepares writers, or opens the backup file
// when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.client = influxdb2.NewClientWithOptions(
		m.ServerURL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.log.Warn().Err(err).Str("url", m.ServerURL()).Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.createWriters()
	m.valid = true
	m.log.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter != nil {
		return nil
	}

	dir := m.cfg.BackupDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("influx_backup_%s.lp.gz", time.Now().UTC().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = f
	m.backupWriter = gzip.NewWriter(f)
	m.backupPath = path
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := m.client.BucketsAPI()
	for _, bucket := range m.bucketNames {
		if _, err := buckets.FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.log.Info().Str("bucket", bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err := buckets.CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriters() {
	for _, bucket := range m.bucketNames {
		w := m.client.WriteAPI(m.cfg.Org, bucket)
		m.writers[bucket] = w

		go func(bucket string, errs <-chan error) {
			for writeErr := range errs {
				m.log.Error().Err(writeErr).Str("bucket", bucket).Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}
	m.log.Debug().Int("buckets", len(m.writers)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.valid {
		w, ok := m.writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.backupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// SessionPoint builds the session_stats point of a finished session.
func SessionPoint(sessionID string, doc core.Document, at time.Time) *influxdb2_write.Point {
	spawns, shoots := doc.CountEvents()
	return influxdb2_write.NewPoint(
		MeasurementSessionStats,
		map[string]string{
			"session":     sessionID,
			"final_stage": fmt.Sprint(doc.FinalStage),
		},
		map[string]interface{}{
			"score":             doc.Score,
			"frames":            doc.Statistics.TotalFrames,
			"play_duration":     doc.Statistics.PlayDuration,
			"enemies_destroyed": doc.Statistics.EnemiesDestroyed,
			"shots_fired":       doc.Statistics.ShotsFired,
			"hits":              doc.Statistics.Hits,
			"deaths":            doc.Statistics.Deaths,
			"spawn_events":      spawns,
			"shoot_events":      shoots,
		},
		at,
	)
}

// WriteSession writes the session_stats point. The point is stamped with the
// recording start from metadata when present, otherwise with now.
func (m *Manager) WriteSession(ctx context.Context, sessionID string, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.WritePoint(BucketPlayerPerformance, SessionPoint(sessionID, doc, sessionTime(doc)))
}

// WriteTimeline samples every n-th frame into frame_state points, stamped at
// recording start plus the frame's fixed-rate timestamp.
func (m *Manager) WriteTimeline(ctx context.Context, sessionID string, doc core.Document, every int) (int, error) {
	if every <= 0 {
		every = 1
	}
	start := sessionTime(doc)
	written := 0
	for i := 0; i < len(doc.Frames); i += every {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		f := doc.Frames[i]
		at := start.Add(time.Duration(f.Timestamp * float64(time.Second)))
		p := influxdb2_write.NewPoint(
			MeasurementFrameState,
			map[string]string{"session": sessionID},
			map[string]interface{}{
				"frame":    f.FrameNumber,
				"score":    f.Score,
				"lives":    f.Lives,
				"stage":    f.Stage,
				"player_x": f.PlayerX,
				"player_y": f.PlayerY,
			},
			at,
		)
		if err := m.WritePoint(BucketSessionTimeline, p); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func sessionTime(doc core.Document) time.Time {
	if s, ok := doc.Metadata[recorder.MetadataRecordedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// Close flushes pending writes and the backup file.
func (m *Manager) Close() error {
	if m.client != nil {
		for _, w := range m.writers {
			w.Flush()
		}
		m.client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter == nil {
		return nil
	}
	err := errors.Join(m.backupWriter.Close(), m.backupFile.Close())
	m.backupWriter = nil
	m.backupFile = nil
	if err != nil {
		return fmt.Errorf("error closing InfluxDB backup file: %w", err)
	}
	return nil
}
