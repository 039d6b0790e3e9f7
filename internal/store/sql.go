package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/dgallion1/bratgest/internal/apperr"
)

// dialect holds the statements that differ between SQLite and Postgres.
type dialect struct {
	driver     Driver
	sqlDriver  string
	createStmt string
	upsertStmt string
	getStmt    string
	deleteStmt string
	listStmt   string
}

var sqliteDialect = dialect{
	driver:    DriverSQLite,
	sqlDriver: "sqlite",
	createStmt: `CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`,
	upsertStmt: `INSERT INTO snapshots(key, payload, content_type, metadata, etag, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, content_type=excluded.content_type,
			metadata=excluded.metadata, etag=excluded.etag, updated_at=excluded.updated_at`,
	getStmt:    `SELECT payload, content_type, metadata, etag, updated_at FROM snapshots WHERE key = ?`,
	deleteStmt: `DELETE FROM snapshots WHERE key = ?`,
	listStmt:   `SELECT key, length(payload), content_type, metadata, etag, updated_at FROM snapshots ORDER BY key`,
}

var postgresDialect = dialect{
	driver:    DriverPostgres,
	sqlDriver: "pgx",
	createStmt: `CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`,
	upsertStmt: `INSERT INTO snapshots(key, payload, content_type, metadata, etag, updated_at)
		VALUES($1, $2, $3, $4, $5, $6)
		ON CONFLICT(key) DO UPDATE SET payload=EXCLUDED.payload, content_type=EXCLUDED.content_type,
			metadata=EXCLUDED.metadata, etag=EXCLUDED.etag, updated_at=EXCLUDED.updated_at`,
	getStmt:    `SELECT payload, content_type, metadata, etag, updated_at FROM snapshots WHERE key = $1`,
	deleteStmt: `DELETE FROM snapshots WHERE key = $1`,
	listStmt:   `SELECT key, octet_length(payload), content_type, metadata, etag, updated_at FROM snapshots ORDER BY key`,
}

// SQL keeps each object as one row of a snapshots table.
type SQL struct {
	db *sql.DB
	d  dialect
}

// NewSQLite opens (or creates) a SQLite database file.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	if path == "" {
		path = "bratgest.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	return openSQL(ctx, sqliteDialect, path)
}

// NewPostgres connects to Postgres through pgx.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.createStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQL{db: db, d: d}, nil
}

func (s *SQL) Driver() Driver { return s.d.driver }
func (s *SQL) Close() error   { return s.db.Close() }

func (s *SQL) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return Info{}, fmt.Errorf("encode metadata: %w", err)
	}
	now := time.Now().UTC()
	tag := etag(data)
	if _, err := s.db.ExecContext(ctx, s.d.upsertStmt, key, data, opts.ContentType, string(md), tag, now.Format(time.RFC3339Nano)); err != nil {
		return Info{}, fmt.Errorf("upsert %s: %w", key, err)
	}
	return Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         tag,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: now,
	}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	var (
		data        []byte
		contentType string
		md          string
		tag         string
		updated     string
	)
	err := s.db.QueryRowContext(ctx, s.d.getStmt, key).Scan(&data, &contentType, &md, &tag, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, nil, &apperr.NotFoundError{Resource: "object", ID: key, Err: err}
	}
	if err != nil {
		return Info{}, nil, fmt.Errorf("select %s: %w", key, err)
	}
	info, err := rowInfo(key, int64(len(data)), contentType, md, tag, updated)
	if err != nil {
		return Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

func (s *SQL) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.d.deleteStmt, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQL) List(ctx context.Context, prefix string) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, s.d.listStmt)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []Info
	for rows.Next() {
		var (
			key, contentType, md, tag, updated string
			size                               int64
		)
		if err := rows.Scan(&key, &size, &contentType, &md, &tag, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		info, err := rowInfo(key, size, contentType, md, tag, updated)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func rowInfo(key string, size int64, contentType, md, tag, updated string) (Info, error) {
	info := Info{Key: key, Size: size, ContentType: contentType, ETag: tag}
	if md != "" && md != "null" {
		if err := json.Unmarshal([]byte(md), &info.Metadata); err != nil {
			return Info{}, fmt.Errorf("decode metadata for %s: %w", key, err)
		}
		info.Metadata = cloneMetadata(info.Metadata)
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Info{}, fmt.Errorf("decode timestamp for %s: %w", key, err)
	}
	info.LastModified = ts
	return info, nil
}
