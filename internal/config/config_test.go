package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"tickRate": 60,
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 60, GetInt("tickRate"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./replaylogs", viper.GetString("logsDir"))
	assert.Equal(t, 30, viper.GetInt("tickRate"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
	assert.Equal(t, "replays", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "replay-metrics", viper.GetString("influx.org"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "file", viper.GetString("storage.type"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	LoadDefaults()
	assert.Equal(t, "file", GetStorageConfig().Type)
	assert.Equal(t, "info", GetString("logLevel"))
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "file", cfg.Type)
	assert.Equal(t, "./replays", cfg.File.OutputDir)
	assert.Equal(t, true, cfg.File.CompressOutput)
	assert.Equal(t, "./replays/replays.db", cfg.SQLite.Path)
	assert.Equal(t, 5*time.Second, cfg.SQLite.FlushInterval)
	assert.Equal(t, 2*time.Second, cfg.Postgres.FlushInterval)
	assert.Equal(t, "ws://localhost:5000/ws/replays", cfg.Websocket.URL)
	assert.Equal(t, 10*time.Second, cfg.Websocket.AckTimeout)
	assert.Equal(t, 5*time.Second, cfg.Websocket.DialTimeout)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"file": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/r.db", "flushInterval": "250ms" },
			"websocket": { "url": "wss://replays.example/ws", "secret": "s3cret" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.File.OutputDir)
	assert.Equal(t, false, sc.File.CompressOutput)
	assert.Equal(t, "/tmp/r.db", sc.SQLite.Path)
	assert.Equal(t, 250*time.Millisecond, sc.SQLite.FlushInterval)
	assert.Equal(t, "wss://replays.example/ws", sc.Websocket.URL)
	assert.Equal(t, "s3cret", sc.Websocket.Secret)
}

func TestGetSectionConfigs(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"api": { "serverUrl": "https://replays.example", "apiKey": "k" },
		"db": { "host": "db", "username": "u", "password": "p" },
		"influx": { "enabled": true, "host": "influx", "token": "t" },
		"graylog": { "enabled": true, "address": "graylog:12201" }
	}`)))

	assert.Equal(t, APIConfig{ServerURL: "https://replays.example", APIKey: "k"}, GetAPIConfig())
	assert.Equal(t, DBConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "replays"}, GetDBConfig())

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "influx", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "http", ic.Protocol)
	assert.Equal(t, "t", ic.Token)

	assert.Equal(t, GraylogConfig{Enabled: true, Address: "graylog:12201"}, GetGraylogConfig())
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "replay-recorder", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "replay-lab",
			"batchTimeout": "30s",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "replay-lab", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}
