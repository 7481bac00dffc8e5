package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/database"
	"github.com/vortexreplay/recorder/internal/storage"
	"github.com/vortexreplay/recorder/internal/storage/file"
	"github.com/vortexreplay/recorder/internal/storage/gormstore"
	wsstorage "github.com/vortexreplay/recorder/internal/storage/websocket"
)

// openStorage creates and initializes the configured backend.
func openStorage(storageCfg config.StorageConfig, dbCfg config.DBConfig, apiCfg config.APIConfig, log zerolog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(storageCfg, dbCfg, apiCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, dbCfg config.DBConfig, apiCfg config.APIConfig, log zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		db, fellBack, err := database.OpenWithFallback(dbCfg, storageCfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		interval := storageCfg.Postgres.FlushInterval
		if fellBack {
			interval = storageCfg.SQLite.FlushInterval
		}
		log.Info().Bool("fallback", fellBack).Msg("Database storage backend initialized")
		return gormstore.New(db, gormstore.Config{FlushInterval: interval}, log), nil

	case "sqlite":
		db, err := database.OpenSQLite(storageCfg.SQLite.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info().Str("path", storageCfg.SQLite.Path).Msg("SQLite storage backend initialized")
		return gormstore.New(db, gormstore.Config{FlushInterval: storageCfg.SQLite.FlushInterval}, log), nil

	case "websocket":
		wsCfg := storageCfg.Websocket
		if wsCfg.URL == "" {
			wsCfg.URL = httpToWS(apiCfg.ServerURL) + "/ws/replays"
		}
		if wsCfg.Secret == "" {
			wsCfg.Secret = apiCfg.APIKey
		}
		log.Info().Str("url", wsCfg.URL).Msg("WebSocket storage backend initialized")
		return wsstorage.New(wsCfg), nil

	case "file", "":
		log.Info().Str("dir", storageCfg.File.OutputDir).Msg("File storage backend initialized")
		return file.New(storageCfg.File), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
