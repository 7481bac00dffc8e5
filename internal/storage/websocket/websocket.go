// Package websocket saves replays by streaming them to the replay server.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/replayfile"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/pkg/core"
	"github.com/vortexreplay/recorder/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

// Backend sends each saved replay as one save_replay envelope and waits for
// the server's ack. It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn   *connection
	cfg    config.WebsocketConfig
	nextID atomic.Uint64
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebsocketConfig) *Backend {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret, b.cfg.DialTimeout)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType, id string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, ID: id, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Save streams doc and returns the server's reference, or name when the
// server does not assign one.
func (b *Backend) Save(ctx context.Context, name string, doc core.Document) (string, error) {
	encoded, err := replayfile.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode replay: %w", err)
	}

	id := fmt.Sprintf("r-%d", b.nextID.Add(1))
	data, err := marshalEnvelope(streaming.TypeSaveReplay, id, streaming.SaveReplayPayload{
		Name:       name,
		Score:      doc.Score,
		FinalStage: doc.FinalStage,
		Frames:     doc.Statistics.TotalFrames,
		Replay:     encoded,
	})
	if err != nil {
		return "", err
	}

	ack, err := b.conn.request(ctx, data, id, b.cfg.AckTimeout)
	if err != nil {
		return "", err
	}
	if ack.Error != "" {
		return "", fmt.Errorf("server rejected replay %s: %s", name, ack.Error)
	}
	if ack.Ref != "" {
		return ack.Ref, nil
	}
	return name, nil
}

// Load is not available over the stream.
func (b *Backend) Load(context.Context, string) (core.Document, error) {
	return core.Document{}, storage.ErrUnsupported
}

// List is not available over the stream.
func (b *Backend) List(context.Context) ([]storage.Summary, error) {
	return nil, storage.ErrUnsupported
}
