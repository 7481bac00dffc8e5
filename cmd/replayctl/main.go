// Command replayctl inspects, repairs, replays and ships recorded sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/vortexreplay/recorder/internal/config"
	"github.com/vortexreplay/recorder/internal/logging"
	intOtel "github.com/vortexreplay/recorder/internal/otel"
)

// BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "replayctl"
)

var errUsage = errors.New("usage error")

// app carries the loggers and telemetry of one invocation.
type app struct {
	out io.Writer

	start     time.Time
	sessionID string
	frame     atomic.Int64

	logs    *logging.Manager
	log     *slog.Logger
	zlog    zerolog.Logger
	otel    *intOtel.Provider
	logFile *os.File
	graylog *gelf.Writer
}

func newApp(out io.Writer) *app {
	start := time.Now()
	return &app{
		out:       out,
		start:     start,
		sessionID: start.UTC().Format("20060102_150405"),
		logs:      logging.NewManager(),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		zlog:      zerolog.Nop(),
	}
}

// setup loads config and brings up the log sinks: session log file,
// optional OTel bridge and optional Graylog.
func (a *app) setup(ctx context.Context, configDir string) {
	configErr := config.Load(configDir)

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs dir: %v\n", err)
	}
	logPath := logging.LogFilePath(logsDir, AppName, a.start)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log file %s: %v\n", logPath, err)
	} else {
		a.logFile = f
	}

	otelCfg := config.GetOTelConfig()
	var otelErr error
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		}
		if a.logFile != nil {
			cfg.LogWriter = a.logFile
		}
		a.otel, otelErr = intOtel.New(ctx, cfg)
	}

	var graylogErr error
	if gl := config.GetGraylogConfig(); gl.Enabled {
		a.graylog, graylogErr = logging.DialGraylog(gl.Address)
	}

	logCfg := logging.Config{
		Level:   viper.GetString("logLevel"),
		Session: logging.FrameAttrs(a.sessionID, func() int { return int(a.frame.Load()) }),
	}
	if a.logFile != nil {
		logCfg.File = a.logFile
	}
	if a.otel != nil {
		logCfg.Provider = a.otel.LoggerProvider()
	}
	if a.graylog != nil {
		logCfg.Graylog = a.graylog
	}
	a.logs.Setup(logCfg)
	a.log = a.logs.Logger()

	var zfile io.Writer
	if a.logFile != nil {
		zfile = a.logFile
	}
	a.zlog = logging.NewZerolog(viper.GetString("logLevel"), zfile)

	if configErr != nil {
		a.log.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		a.log.Info("Loaded config", "dir", configDir)
	}
	if otelErr != nil {
		a.log.Error("Failed to initialize OTel provider", "error", otelErr)
	} else if a.otel != nil {
		a.log.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
	}
	if graylogErr != nil {
		a.log.Error("Failed to connect to Graylog", "error", graylogErr)
	}
	a.log.Info("Starting up", "version", CurrentVersion, "build", BuildDate)
}

func (a *app) close(ctx context.Context) {
	if err := a.logs.Flush(ctx); err != nil {
		a.log.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown: %v\n", err)
		}
	}
	if a.graylog != nil {
		_ = a.graylog.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// parseArgs splits global flags from the command and its arguments.
func parseArgs(args []string) (configDir, cmd string, rest []string, err error) {
	configDir = "."
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch flag := args[0]; {
		case flag == "-config" || flag == "--config":
			if len(args) < 2 {
				return "", "", nil, fmt.Errorf("%w: %s needs a directory", errUsage, flag)
			}
			configDir = args[1]
			args = args[2:]
		case strings.HasPrefix(flag, "-config=") || strings.HasPrefix(flag, "--config="):
			_, configDir, _ = strings.Cut(flag, "=")
			args = args[1:]
		case flag == "-h" || flag == "--help":
			return configDir, "help", nil, nil
		default:
			return "", "", nil, fmt.Errorf("%w: unknown flag %s", errUsage, flag)
		}
	}
	if len(args) == 0 {
		return configDir, "", nil, fmt.Errorf("%w: no command given", errUsage)
	}
	return configDir, strings.ToLower(args[0]), args[1:], nil
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "%s %s (%s)\n\n", AppName, CurrentVersion, BuildDate)
	fmt.Fprintf(w, "Usage: %s [-config DIR] <command> [args]\n\nCommands:\n", AppName)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].usage)
	}
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	configDir, name, rest, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(out, err)
		usage(out)
		return 2
	}
	switch name {
	case "help":
		usage(out)
		return 0
	case "version":
		fmt.Fprintf(out, "%s %s (%s)\n", AppName, CurrentVersion, BuildDate)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n", name)
		usage(out)
		return 2
	}

	a := newApp(out)
	a.setup(ctx, configDir)
	defer a.close(context.Background())

	if err := cmd.run(ctx, a, rest); err != nil {
		a.log.Error("Command failed", "command", name, "error", err)
		fmt.Fprintf(out, "%s: %v\n", name, err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	a.log.Info("Command finished", "command", name, "duration", time.Since(a.start))
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}
