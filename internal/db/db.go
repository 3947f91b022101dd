// Package db opens the board's SQLite file.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".taskboard"
	fileName = "taskboard.db"
)

type Config struct {
	Workspace string
	// BusyTimeout bounds how long a statement waits on a locked file. Zero means 5s.
	BusyTimeout time.Duration
}

// EnsureWorkspace creates the .taskboard directory under workspace and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(orDot(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Path is where the database for workspace lives.
func Path(workspace string) string {
	return filepath.Join(orDot(workspace), stateDir, fileName)
}

// Open returns a handle limited to one connection. Transactions therefore
// run one at a time, which keeps each bucket reindex an atomic read-modify-write.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func orDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}
