package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Storage and queue drivers.
const (
	StorageBolt   = "bolt"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	QueueMemory   = "memory"
	QueueRedis    = "redis"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string            `yaml:"git_commit" envconfig:"ALEX_GIT_COMMIT"`
	GitTag                  string            `yaml:"git_tag" envconfig:"ALEX_GIT_TAG"`
	BuildTime               string            `yaml:"build_time" envconfig:"ALEX_BUILD_TIME"`
	IsProduction            bool              `yaml:"is_production" envconfig:"ALEX_IS_PRODUCTION"`
	LogLevel                zapcore.Level     `yaml:"log_level" envconfig:"ALEX_LOG_LEVEL"`
	LogFolder               string            `yaml:"log_folder" envconfig:"ALEX_LOG_FOLDER"`
	LogMaxSize              int               `yaml:"log_max_size" envconfig:"ALEX_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool              `yaml:"ops_endpoints_enable" envconfig:"ALEX_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool              `yaml:"profiler_endpoints_enable" envconfig:"ALEX_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig      `yaml:"server"`
	ISBN                    ISBNConfig        `yaml:"isbn"`
	Storage                 StorageConfig     `yaml:"storage"`
	Queue                   QueueConfig       `yaml:"queue"`
	Redis                   RedisConfig       `yaml:"redis"`
	BoltDB                  BoltDBConfig      `yaml:"boltdb"`
	SQLite                  SQLiteConfig      `yaml:"sqlite"`
	GoogleBooks             GoogleBooksConfig `yaml:"google_books"`
	Probe                   ProbeConfig       `yaml:"probe"`
	Covers                  CoversConfig      `yaml:"covers"`
	Events                  EventsConfig      `yaml:"events"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"ALEX_SERVER_HOST"`
	Port            string        `yaml:"port" envconfig:"ALEX_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"ALEX_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"ALEX_SERVER_WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"ALEX_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"ALEX_SERVER_SHUTDOWN_TIMEOUT"`
}

type ISBNConfig struct {
	Checksum ChecksumPolicy `yaml:"checksum" envconfig:"ALEX_ISBN_CHECKSUM"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"ALEX_STORAGE_DRIVER"`
}

type QueueConfig struct {
	Driver   string `yaml:"driver" envconfig:"ALEX_QUEUE_DRIVER"`
	Name     string `yaml:"name" envconfig:"ALEX_QUEUE_NAME"`
	Capacity int    `yaml:"capacity" envconfig:"ALEX_QUEUE_CAPACITY"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"ALEX_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"ALEX_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"ALEX_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"ALEX_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"ALEX_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"ALEX_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"ALEX_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"ALEX_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"ALEX_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"ALEX_REDIS_DATABASE_INDEX"`
}

type BoltDBConfig struct {
	FilePath string        `yaml:"filepath" envconfig:"ALEX_BOLTDB_FILE_PATH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"ALEX_BOLTDB_TIMEOUT"`
}

type SQLiteConfig struct {
	FilePath    string        `yaml:"filepath" envconfig:"ALEX_SQLITE_FILE_PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"ALEX_SQLITE_BUSY_TIMEOUT"`
}

// GoogleBooksConfig holds the remote metadata api settings. MaxAttempts
// defaults to a single attempt and a zero Timeout keeps the http client
// default (no timeout).
type GoogleBooksConfig struct {
	BaseURL     string        `yaml:"base_url" envconfig:"ALEX_GOOGLE_BOOKS_BASE_URL"`
	APIKey      string        `yaml:"api_key" envconfig:"ALEX_GOOGLE_BOOKS_API_KEY" json:"-"`
	UserAgent   string        `yaml:"user_agent" envconfig:"ALEX_GOOGLE_BOOKS_USER_AGENT"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"ALEX_GOOGLE_BOOKS_MAX_ATTEMPTS"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"ALEX_GOOGLE_BOOKS_TIMEOUT"`
	RateLimit   float64       `yaml:"rate_limit" envconfig:"ALEX_GOOGLE_BOOKS_RATE_LIMIT"` // requests per second, 0 disables
}

type ProbeConfig struct {
	Targets []string      `yaml:"targets" envconfig:"ALEX_PROBE_TARGETS"`
	Timeout time.Duration `yaml:"timeout" envconfig:"ALEX_PROBE_TIMEOUT"`
}

type CoversConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ALEX_COVERS_ENABLED"`
	Folder   string        `yaml:"folder" envconfig:"ALEX_COVERS_FOLDER"`
	MaxWidth int           `yaml:"max_width" envconfig:"ALEX_COVERS_MAX_WIDTH"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"ALEX_COVERS_TIMEOUT"`
}

type EventsConfig struct {
	BufferSize int `yaml:"buffer_size" envconfig:"ALEX_EVENTS_BUFFER_SIZE"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	SetConfigDefaults(config)

	if !config.ISBN.Checksum.IsValid() {
		return fmt.Errorf("unknown isbn checksum policy %q", config.ISBN.Checksum)
	}

	switch config.Storage.Driver {
	case StorageBolt, StorageSQLite:
	case StorageRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	switch config.Queue.Driver {
	case QueueMemory:
	case QueueRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", config.Queue.Driver)
	}

	return nil
}

// SetConfigDefaults fills zero values with the application defaults.
func SetConfigDefaults(config *Config) {
	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}
	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}
	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}
	if config.ISBN.Checksum == "" {
		config.ISBN.Checksum = ChecksumStandard
	}
	if config.Storage.Driver == "" {
		config.Storage.Driver = StorageBolt
	}
	if config.Queue.Driver == "" {
		config.Queue.Driver = QueueMemory
	}
	if config.Queue.Name == "" {
		config.Queue.Name = "alexandria:jobs"
	}
	if config.Queue.Capacity <= 0 {
		config.Queue.Capacity = 128
	}
	if config.BoltDB.FilePath == "" {
		config.BoltDB.FilePath = "./data/alexandria.bolt.db"
	}
	if config.BoltDB.Timeout <= 0 {
		config.BoltDB.Timeout = 5 * time.Second
	}
	if config.SQLite.FilePath == "" {
		config.SQLite.FilePath = "./data/alexandria.sqlite.db"
	}
	if config.SQLite.BusyTimeout <= 0 {
		config.SQLite.BusyTimeout = 5 * time.Second
	}
	if config.GoogleBooks.BaseURL == "" {
		config.GoogleBooks.BaseURL = DefaultGoogleBooksBaseURL
	}
	if config.GoogleBooks.UserAgent == "" {
		config.GoogleBooks.UserAgent = "alexandria/" + config.GitTag
	}
	if config.GoogleBooks.MaxAttempts <= 0 {
		config.GoogleBooks.MaxAttempts = 1
	}
	if len(config.Probe.Targets) == 0 {
		config.Probe.Targets = []string{"www.googleapis.com:443", "8.8.8.8:53"}
	}
	if config.Probe.Timeout <= 0 {
		config.Probe.Timeout = 3 * time.Second
	}
	if config.Covers.Folder == "" {
		config.Covers.Folder = "./data/covers"
	}
	if config.Covers.MaxWidth <= 0 {
		config.Covers.MaxWidth = 400
	}
	if config.Covers.Timeout <= 0 {
		config.Covers.Timeout = 30 * time.Second
	}
	if config.Events.BufferSize <= 0 {
		config.Events.BufferSize = 16
	}
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The environment file is optional.
func LoadAndInitConfigs(configFile, envFile, gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile(configFile)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration.
	if _, serr := os.Stat(envFile); serr == nil {
		if err = godotenv.Load(envFile); err != nil {
			return config, fmt.Errorf("failed to set environment configurations: %s", err)
		}
	}

	// Use environment variables with prefix `ALEX`.
	err = LoadConfigEnvs("ALEX", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
