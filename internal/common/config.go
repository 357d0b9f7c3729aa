package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all application configuration
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Sanitizer   SanitizerConfig   `yaml:"sanitizer"`
	Queue       QueueConfig       `yaml:"queue"`
	Uploader    UploaderConfig    `yaml:"uploader"`
	Normalizer  NormalizerConfig  `yaml:"normalizer"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	MigrateOnStart   bool          `yaml:"migrate_on_start"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// ObjectStoreConfig selects and configures the binary object store.
type ObjectStoreConfig struct {
	Backend        string `yaml:"backend"` // minio | gcs
	Bucket         string `yaml:"bucket"`
	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`
}

// RedisConfig configures the optional sanitized-variant index.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// KafkaConfig configures process-request transport.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// ProcessorConfig holds media processor configuration
type ProcessorConfig struct {
	ThumbnailURLTTL time.Duration `yaml:"thumbnail_url_ttl"`
	Resample        bool          `yaml:"resample"`
	Timeout         time.Duration `yaml:"timeout"`
	Workers         int           `yaml:"workers"`
}

// SanitizerConfig holds sanitizer URL lifetimes.
type SanitizerConfig struct {
	VariantURLTTL  time.Duration `yaml:"variant_url_ttl"`
	DownloadURLTTL time.Duration `yaml:"download_url_ttl"`
}

// QueueConfig holds client-side upload queue configuration
type QueueConfig struct {
	Path        string  `yaml:"path"`
	PreviewDir  string  `yaml:"preview_dir"`
	MaxItems    int     `yaml:"max_items"`
	MaxBytes    int64   `yaml:"max_bytes"`
	MaxAttempts int     `yaml:"max_attempts"`
	WarnRatio   float64 `yaml:"warn_ratio"`
}

// UploaderConfig holds background uploader configuration
type UploaderConfig struct {
	ServerURL    string        `yaml:"server_url"`
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	Timeout      time.Duration `yaml:"timeout"`
}

// NormalizerConfig holds vendor-format conversion configuration
type NormalizerConfig struct {
	HeicConverter string `yaml:"heic_converter"`
	CacheDir      string `yaml:"cache_dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
			MigrateOnStart:  true,
		},
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":8081",
			MaxUploadBytes: 100 << 20,
		},
		ObjectStore: ObjectStoreConfig{
			Backend:        "minio",
			Bucket:         "job-media",
			MinIOEndpoint:  "localhost:9000",
			MinIOAccessKey: "minioadmin",
			MinIOSecretKey: "minioadmin",
		},
		Kafka: KafkaConfig{
			Topic:   "media.process",
			GroupID: "media-processor",
		},
		Processor: ProcessorConfig{
			ThumbnailURLTTL: 365 * 24 * time.Hour,
			Timeout:         2 * time.Minute,
			Workers:         4,
		},
		Sanitizer: SanitizerConfig{
			VariantURLTTL:  24 * time.Hour,
			DownloadURLTTL: time.Hour,
		},
		Queue: QueueConfig{
			Path:        "./upload-queue.db",
			PreviewDir:  "./previews",
			MaxItems:    100,
			MaxBytes:    500 << 20,
			MaxAttempts: 10,
			WarnRatio:   0.8,
		},
		Uploader: UploaderConfig{
			ServerURL:    "http://localhost:8080",
			Workers:      3,
			PollInterval: 5 * time.Second,
			BackoffBase:  2 * time.Second,
			BackoffMax:   5 * time.Minute,
			Timeout:      2 * time.Minute,
		},
		Normalizer: NormalizerConfig{
			HeicConverter: "magick",
			CacheDir:      "./tmp",
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("LOG_LEVEL", &c.Log.Level)

	envString("DB_URL", &c.Database.DSN)
	envInt32("DB_MAX_CONNS", &c.Database.MaxConns)
	envInt32("DB_MIN_CONNS", &c.Database.MinConns)
	envDuration("DB_MAX_CONN_LIFETIME", &c.Database.MaxConnLifetime)
	envDuration("DB_MAX_CONN_IDLE_TIME", &c.Database.MaxConnIdleTime)
	envDuration("DB_DIAL_TIMEOUT", &c.Database.DialTimeout)
	envDuration("DB_STATEMENT_TIMEOUT", &c.Database.StatementTimeout)
	envBool("DB_MIGRATE_ON_START", &c.Database.MigrateOnStart)

	envString("HTTP_ADDR", &c.Server.HTTPAddr)
	envString("GRPC_ADDR", &c.Server.GRPCAddr)
	envInt64("MAX_UPLOAD_BYTES", &c.Server.MaxUploadBytes)

	envString("OBJECT_STORE", &c.ObjectStore.Backend)
	envString("MEDIA_BUCKET", &c.ObjectStore.Bucket)
	envString("MINIO_ENDPOINT", &c.ObjectStore.MinIOEndpoint)
	envString("MINIO_ACCESS_KEY", &c.ObjectStore.MinIOAccessKey)
	envString("MINIO_SECRET_KEY", &c.ObjectStore.MinIOSecretKey)
	envBool("MINIO_USE_SSL", &c.ObjectStore.MinIOUseSSL)

	envString("REDIS_URL", &c.Redis.URL)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	envString("KAFKA_TOPIC", &c.Kafka.Topic)
	envString("KAFKA_GROUP_ID", &c.Kafka.GroupID)

	envDuration("PROCESSOR_THUMBNAIL_URL_TTL", &c.Processor.ThumbnailURLTTL)
	envBool("PROCESSOR_RESAMPLE", &c.Processor.Resample)
	envDuration("PROCESSOR_TIMEOUT", &c.Processor.Timeout)
	envInt("PROCESSOR_WORKERS", &c.Processor.Workers)

	envDuration("SANITIZER_VARIANT_URL_TTL", &c.Sanitizer.VariantURLTTL)
	envDuration("SANITIZER_DOWNLOAD_URL_TTL", &c.Sanitizer.DownloadURLTTL)

	envString("QUEUE_PATH", &c.Queue.Path)
	envString("QUEUE_PREVIEW_DIR", &c.Queue.PreviewDir)

	envString("UPLOAD_SERVER_URL", &c.Uploader.ServerURL)
	envInt("UPLOAD_WORKERS", &c.Uploader.Workers)
	envDuration("UPLOAD_POLL_INTERVAL", &c.Uploader.PollInterval)
	envDuration("UPLOAD_BACKOFF_BASE", &c.Uploader.BackoffBase)
	envDuration("UPLOAD_BACKOFF_MAX", &c.Uploader.BackoffMax)
	envDuration("UPLOAD_TIMEOUT", &c.Uploader.Timeout)

	envString("HEIC_CONVERTER", &c.Normalizer.HeicConverter)
	envString("ARTIFACT_CACHE_DIR", &c.Normalizer.CacheDir)
}

// ValidateServer checks the settings the media server cannot run without.
func (c *Config) ValidateServer() error {
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.ObjectStore.Bucket == "" {
		return NewAppError(CodeConfig, "MEDIA_BUCKET is required", ErrInvalidInput)
	}
	switch c.ObjectStore.Backend {
	case "minio", "gcs":
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("OBJECT_STORE must be minio or gcs, got %q", c.ObjectStore.Backend), ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

// ValidateClient checks the settings the upload client cannot run without.
func (c *Config) ValidateClient() error {
	if c.Queue.Path == "" {
		return NewAppError(CodeConfig, "QUEUE_PATH is required", ErrInvalidInput)
	}
	if c.Queue.MaxItems <= 0 || c.Queue.MaxBytes <= 0 || c.Queue.MaxAttempts <= 0 {
		return NewAppError(CodeConfig, "queue limits must be positive", ErrInvalidInput)
	}
	if c.Uploader.ServerURL == "" {
		return NewAppError(CodeConfig, "UPLOAD_SERVER_URL is required", ErrInvalidInput)
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Helper functions for environment variable parsing
func envString(key string, dst *string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func envInt(key string, dst *int) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			*dst = intVal
		}
	}
}

func envInt32(key string, dst *int32) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			*dst = int32(intVal)
		}
	}
}

func envInt64(key string, dst *int64) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = intVal
		}
	}
}

func envBool(key string, dst *bool) {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			*dst = duration
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
