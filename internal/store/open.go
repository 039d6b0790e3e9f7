package store

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures a backend. Zero value means the
// filesystem driver rooted at ./snapshots.
type Config struct {
	Driver      Driver
	FSRoot      string
	S3          S3Config
	SQLitePath  string
	PostgresDSN string

	// Retries is the number of extra attempts for the network drivers
	// (s3, postgres). Negative disables retrying; zero means
	// DefaultRetries.
	Retries    int
	RetryDelay time.Duration
}

// Open builds the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		st, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return cfg.retrying(st), nil
	case DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		st, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return cfg.retrying(st), nil
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}

func (cfg Config) retrying(st Store) Store {
	switch {
	case cfg.Retries < 0:
		return st
	case cfg.Retries == 0:
		return WithRetry(st, DefaultRetries, cfg.RetryDelay)
	default:
		return WithRetry(st, cfg.Retries, cfg.RetryDelay)
	}
}
