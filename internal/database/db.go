package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite session store. The default DSN is a shared
// in-memory database: a single pooled connection is pinned open so the
// database lives exactly as long as the process.
type DB struct {
	conn *sql.DB
}

type Config struct {
	DSN string
}

const defaultDSN = "file:cfvideoanalysis?mode=memory&cache=shared"

func NewDB(config Config) (*DB, error) {
	dsn := config.DSN
	if dsn == "" {
		dsn = defaultDSN
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pinned connection keeps the in-memory database alive and
	// serializes writers, which sqlite requires anyway.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		video_filename TEXT NOT NULL DEFAULT '',
		video_name TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		video_size INTEGER NOT NULL DEFAULT 0,
		video_uploaded_at DATETIME,
		user_query TEXT NOT NULL DEFAULT '',
		analysis TEXT NOT NULL DEFAULT '',
		script TEXT NOT NULL DEFAULT '',
		audio BLOB,
		voice_id TEXT NOT NULL DEFAULT '',
		show_narration INTEGER NOT NULL DEFAULT 0,
		audio_generated INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		progress_stage TEXT NOT NULL DEFAULT '',
		progress_percent INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`

	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
