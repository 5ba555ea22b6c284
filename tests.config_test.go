package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testConfigYAML = `
is_production: false
log_level: info
server:
  host: 127.0.0.1
  port: "8080"
isbn:
  checksum: standard
storage:
  driver: sqlite
queue:
  driver: memory
  capacity: 4
google_books:
  max_attempts: 3
  rate_limit: 2.5
probe:
  targets: ["a:1"]
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSetConfigDefaults(t *testing.T) {
	config := &Config{}
	SetConfigDefaults(config)
	assert.Equal(t, ChecksumStandard, config.ISBN.Checksum)
	assert.Equal(t, StorageBolt, config.Storage.Driver)
	assert.Equal(t, QueueMemory, config.Queue.Driver)
	assert.Equal(t, 128, config.Queue.Capacity)
	assert.Equal(t, 1, config.GoogleBooks.MaxAttempts)
	assert.Equal(t, DefaultGoogleBooksBaseURL, config.GoogleBooks.BaseURL)
	assert.Equal(t, 30*time.Second, config.Server.RequestTimeout)
	assert.Equal(t, 16, config.Events.BufferSize)
	assert.NotEmpty(t, config.Probe.Targets)
}

func TestInitConfig(t *testing.T) {
	t.Run("should pass: build details applied", func(t *testing.T) {
		config := &Config{Server: ServerConfig{Host: "localhost", Port: "8080"}}
		require.NoError(t, InitConfig(config, "abc", "v1.0.0", "today"))
		assert.Equal(t, "abc", config.GitCommit)
		assert.Equal(t, "v1.0.0", config.GitTag)
		assert.Equal(t, "today", config.BuildTime)
	})

	testCases := []struct {
		name   string
		config *Config
	}{
		{"missing server address", &Config{}},
		{"unknown checksum policy", &Config{
			Server: ServerConfig{Host: "localhost", Port: "8080"},
			ISBN:   ISBNConfig{Checksum: "strict"},
		}},
		{"unknown storage driver", &Config{
			Server:  ServerConfig{Host: "localhost", Port: "8080"},
			Storage: StorageConfig{Driver: "mongo"},
		}},
		{"redis storage without address", &Config{
			Server:  ServerConfig{Host: "localhost", Port: "8080"},
			Storage: StorageConfig{Driver: StorageRedis},
		}},
		{"unknown queue driver", &Config{
			Server: ServerConfig{Host: "localhost", Port: "8080"},
			Queue:  QueueConfig{Driver: "kafka"},
		}},
		{"redis queue without address", &Config{
			Server: ServerConfig{Host: "localhost", Port: "8080"},
			Queue:  QueueConfig{Driver: QueueRedis},
		}},
	}
	for _, tc := range testCases {
		t.Run("should fail: "+tc.name, func(t *testing.T) {
			assert.Error(t, InitConfig(tc.config, "", "", ""))
		})
	}
}

func TestLoadAndInitConfigs(t *testing.T) {
	configFile := writeTempFile(t, "config.yml", testConfigYAML)

	t.Run("should pass: yaml only", func(t *testing.T) {
		config, err := LoadAndInitConfigs(configFile, filepath.Join(t.TempDir(), "missing.env"), "", "", "")
		require.NoError(t, err)
		assert.Equal(t, zapcore.InfoLevel, config.LogLevel)
		assert.Equal(t, StorageSQLite, config.Storage.Driver)
		assert.Equal(t, 4, config.Queue.Capacity)
		assert.Equal(t, 3, config.GoogleBooks.MaxAttempts)
		assert.Equal(t, 2.5, config.GoogleBooks.RateLimit)
		assert.Equal(t, []string{"a:1"}, config.Probe.Targets)
	})

	t.Run("should pass: environment overrides yaml", func(t *testing.T) {
		t.Setenv("ALEX_QUEUE_CAPACITY", "9")
		t.Setenv("ALEX_ISBN_CHECKSUM", "legacy")
		config, err := LoadAndInitConfigs(configFile, "", "", "", "")
		require.NoError(t, err)
		assert.Equal(t, 9, config.Queue.Capacity)
		assert.Equal(t, ChecksumLegacy, config.ISBN.Checksum)
	})

	t.Run("should fail: missing yaml file", func(t *testing.T) {
		_, err := LoadAndInitConfigs(filepath.Join(t.TempDir(), "none.yml"), "", "", "", "")
		assert.Error(t, err)
	})

	t.Run("should fail: invalid environment value", func(t *testing.T) {
		t.Setenv("ALEX_QUEUE_CAPACITY", "many")
		_, err := LoadAndInitConfigs(configFile, "", "", "", "")
		assert.Error(t, err)
	})
}

// TestLoadAndInitConfigs_ShippedFile ensures the repository config file loads
// and keeps a single lookup attempt without client timeout.
func TestLoadAndInitConfigs_ShippedFile(t *testing.T) {
	config, err := LoadAndInitConfigs("config.yml", "", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, config.GoogleBooks.MaxAttempts)
	assert.Equal(t, time.Duration(0), config.GoogleBooks.Timeout)
	assert.Equal(t, 2.0, config.GoogleBooks.RateLimit)
	assert.Equal(t, StorageBolt, config.Storage.Driver)
	assert.Equal(t, QueueMemory, config.Queue.Driver)
}
