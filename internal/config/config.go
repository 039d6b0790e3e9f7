package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/bratgest/internal/store"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Startup data
	DataDir      string
	SnapshotName string
	Autosave     bool

	// Logging
	LogLevel  string
	LogFormat string // json or text

	// Upload limits
	MaxUploadBytes int64

	// Snapshot store
	StoreDriver  string
	StoreFSRoot  string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	SQLitePath   string
	PostgresDSN  string
	StoreTimeout time.Duration
	StoreRetries int
}

// LoadDotenv copies variables from .env style files into the process
// environment without overriding what is already set. Missing files are
// skipped. With no arguments it reads ./.env.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("BRATGEST_API_KEY"),

		DataDir:      os.Getenv("DATA_DIR"),
		SnapshotName: envOr("SNAPSHOT_NAME", "default"),
		Autosave:     envBool("AUTOSAVE", true),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		StoreDriver:  envOr("STORE_DRIVER", string(store.DriverFilesystem)),
		StoreFSRoot:  envOr("STORE_FS_ROOT", "./snapshots"),
		S3Bucket:     os.Getenv("STORE_S3_BUCKET"),
		S3Region:     envOr("STORE_S3_REGION", "us-east-1"),
		S3Endpoint:   os.Getenv("STORE_S3_ENDPOINT"),
		S3PathStyle:  envBool("STORE_S3_PATH_STYLE", false),
		SQLitePath:   envOr("STORE_SQLITE_PATH", "./bratgest.db"),
		PostgresDSN:  os.Getenv("STORE_POSTGRES_DSN"),
		StoreTimeout: envDuration("STORE_TIMEOUT", 30*time.Second),
		StoreRetries: int(envInt64("STORE_RETRIES", int64(store.DefaultRetries))),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10485760
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg
}

// Validate checks everything the HTTP server needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("BRATGEST_API_KEY is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.ValidateStore()
}

// ValidateStore checks the snapshot store settings only.
func (c Config) ValidateStore() error {
	switch store.Driver(c.StoreDriver) {
	case store.DriverFilesystem, store.DriverMemory, store.DriverSQLite:
	case store.DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("STORE_S3_BUCKET is required for the s3 driver")
		}
	case store.DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("STORE_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// StoreConfig maps the STORE_* settings onto store.Config. S3 credentials
// come from the default AWS chain.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Driver: store.Driver(c.StoreDriver),
		FSRoot: c.StoreFSRoot,
		S3: store.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
		},
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
		Retries:     c.StoreRetries,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
