package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	defaultSQLitePath = "./fraud-detector.db"
	memorySQLitePath  = ":memory:"
	openPingTimeout   = 5 * time.Second
)

// sqlitePragmas favour concurrent readers next to the single writer the
// worker produces.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// openSQLite opens the community-tier store with the pure Go driver.
// ":memory:" gives a throwaway database bound to a single connection.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}

	memory := path == memorySQLitePath
	if !memory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if memory {
		// Every new connection would see an empty database.
		db.SetMaxOpenConns(1)
	}

	if err := pingDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}
	return db, nil
}

// sqliteDSN builds the driver URI. _time_format=sqlite keeps stored
// timestamps lexically comparable, which the card window query relies on.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		if path == memorySQLitePath && p == "journal_mode(WAL)" {
			continue
		}
		q.Add("_pragma", p)
	}
	q.Set("_time_format", "sqlite")
	return "file:" + path + "?" + q.Encode()
}

func pingDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}
