package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope for records bridged to OTel.
const ServiceName = "replay-recorder"

// console is where records go when no log file is configured.
var console io.Writer = os.Stdout

// Config selects the sinks of a Manager.
type Config struct {
	Level string
	// File receives text records. When nil, records go to stdout instead.
	File io.Writer
	// Provider bridges records into OpenTelemetry. Optional.
	Provider *sdklog.LoggerProvider
	// Graylog receives GELF messages. Optional.
	Graylog io.Writer
	// Session adds dynamic attributes (session id, frame) to every record.
	Session SessionProvider
}

// Manager owns the process slog.Logger and the sinks behind it.
type Manager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

// NewManager creates a manager; Logger returns slog.Default until Setup.
func NewManager() *Manager {
	return &Manager{}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the handler chain and replaces any previous logger.
func (m *Manager) Setup(cfg Config) {
	lvl := parseLevel(cfg.Level)
	m.logProvider = cfg.Provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if cfg.File != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.File, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}
	if cfg.Graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(cfg.Graylog, handlerOpts))
	}
	if cfg.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(cfg.Provider)))
	}

	var h slog.Handler = NewFanout(handlers...)
	if cfg.Session != nil {
		h = NewSessionHandler(h, cfg.Session)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", lvl.String())
}

// Logger returns the configured logger.
func (m *Manager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *Manager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
