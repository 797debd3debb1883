package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding run and chunk state
type Store struct {
	conn *sql.DB
	path string
}

// Config holds store configuration
type Config struct {
	Path string // Database file path
}

// Open opens or creates a store with the given configuration
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", cfg.Path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Single writer, a few readers
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)

	s := &Store{conn: conn, path: cfg.Path}

	if err := s.initialize(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	for _, pragma := range []string{enableWALMode, setWALCheckpoint, enableForeignKeys} {
		if _, err := s.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	ddl := []string{
		createMetaTable,
		createRunsTable,
		createRunsStatusIndex,
		createChunksTable,
		createChunksStatusIndex,
		createManifestTable,
	}
	for _, stmt := range ddl {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if v, _ := s.GetMeta(MetaKeySchemaVersion); v == "" {
		if err := s.SetMeta(MetaKeySchemaVersion, SchemaVersion); err != nil {
			return err
		}
		if err := s.SetMeta(MetaKeyCreatedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// HealthCheck verifies the database is reachable
func (s *Store) HealthCheck() error {
	return s.conn.Ping()
}

// GetMeta retrieves a metadata value, empty string when absent
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *Store) SetMeta(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}
