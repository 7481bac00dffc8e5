// Package storage defines where finished replay documents go.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vortexreplay/recorder/pkg/core"
)

var (
	// ErrUnsupported is returned by backends that cannot serve an operation.
	ErrUnsupported = errors.New("operation not supported by storage backend")
	// ErrNotFound is returned by Load for an unknown reference.
	ErrNotFound = errors.New("replay not found")
	// ErrExists is returned by Save when the name is already taken.
	ErrExists = errors.New("replay already exists")
)

// Summary describes one stored replay without its frames.
type Summary struct {
	Ref         string
	Name        string
	Score       int
	FinalStage  int
	TotalFrames int
	StoredAt    time.Time
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Save stores doc and returns the reference Load accepts.
	Save(ctx context.Context, name string, doc core.Document) (string, error)
	Load(ctx context.Context, ref string) (core.Document, error)
	List(ctx context.Context) ([]Summary, error)
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
