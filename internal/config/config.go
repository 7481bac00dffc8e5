package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "replay_recorder.cfg.json"

// FileStoreConfig holds settings of the JSON file storage backend.
type FileStoreConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings of the local SQLite archive.
type SQLiteConfig struct {
	Path          string        `json:"path" mapstructure:"path"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// PostgresConfig holds settings of the shared Postgres archive. Connection
// parameters come from DBConfig.
type PostgresConfig struct {
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// WebsocketConfig holds settings of the streaming backend.
type WebsocketConfig struct {
	URL         string        `json:"url" mapstructure:"url"`
	Secret      string        `json:"secret" mapstructure:"secret"`
	AckTimeout  time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
	DialTimeout time.Duration `json:"dialTimeout" mapstructure:"dialTimeout"`
}

// StorageConfig selects and configures the replay storage backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	File      FileStoreConfig `json:"file" mapstructure:"file"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// DBConfig holds Postgres connection parameters.
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds InfluxDB connection parameters.
type InfluxConfig struct {
	Enabled  bool
	Protocol string
	Host     string
	Port     string
	Token    string
	Org      string
	// BackupDir receives gzip line protocol when the server is unreachable.
	BackupDir string
}

// APIConfig holds the web frontend upload endpoint.
type APIConfig struct {
	ServerURL string
	APIKey    string
}

// GraylogConfig holds the GELF sink address.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults applies defaults without reading a file, for commands that
// run without a config directory.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./replaylogs")
	viper.SetDefault("tickRate", 30)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "replays")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "replay-metrics")
	viper.SetDefault("influx.backupDir", "./replaylogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.file.outputDir", "./replays")
	viper.SetDefault("storage.file.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./replays/replays.db")
	viper.SetDefault("storage.sqlite.flushInterval", "5s")
	viper.SetDefault("storage.postgres.flushInterval", "2s")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ws/replays")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.ackTimeout", "10s")
	viper.SetDefault("storage.websocket.dialTimeout", "5s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "replay-recorder")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		File: FileStoreConfig{
			OutputDir:      viper.GetString("storage.file.outputDir"),
			CompressOutput: viper.GetBool("storage.file.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:          viper.GetString("storage.sqlite.path"),
			FlushInterval: viper.GetDuration("storage.sqlite.flushInterval"),
		},
		Postgres: PostgresConfig{
			FlushInterval: viper.GetDuration("storage.postgres.flushInterval"),
		},
		Websocket: WebsocketConfig{
			URL:         viper.GetString("storage.websocket.url"),
			Secret:      viper.GetString("storage.websocket.secret"),
			AckTimeout:  viper.GetDuration("storage.websocket.ackTimeout"),
			DialTimeout: viper.GetDuration("storage.websocket.dialTimeout"),
		},
	}
}

// GetDBConfig returns the db section.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Protocol:  viper.GetString("influx.protocol"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetAPIConfig returns the api section.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetGraylogConfig returns the graylog section.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
