// Package ledger keeps a journal of completed store operations in SQLite.
//
// The journal is informational only. Object visibility is decided by the
// storage engines; nothing reads the ledger to answer fetch or existence
// requests.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	// ErrNoEntry is returned by Lookup when nothing was recorded for a key.
	ErrNoEntry = errors.New("no ledger entry")
)

// Entry is the most recent store recorded for a key.
type Entry struct {
	Root     string
	Key      string
	Size     int64
	StoredAt time.Time
	Stores   int64
}

type Ledger struct {
	db *sql.DB
}

// initSchema applies the embedded migrations in lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// Open opens (creating if needed) the ledger database at dbPath.
func Open(ctx context.Context, dbPath string) (*Ledger, error) {
	if dbPath == "" {
		return nil, errors.New("ledger path must not be empty")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record upserts the entry for root/key.
func (l *Ledger) Record(ctx context.Context, root string, key string, size int64, storedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO entries(root, key, size, stored_at, stores)
		 VALUES(?, ?, ?, ?, 1)
		 ON CONFLICT(root, key) DO UPDATE SET
		 	size=excluded.size,
		 	stored_at=excluded.stored_at,
		 	stores=stores+1`,
		root, key, size, storedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", root, key, err)
	}
	return nil
}

// Lookup returns the entry recorded for root/key.
func (l *Ledger) Lookup(ctx context.Context, root string, key string) (Entry, error) {
	entry := Entry{Root: root, Key: key}
	err := l.db.QueryRowContext(ctx,
		`SELECT size, stored_at, stores FROM entries WHERE root = ? AND key = ?`,
		root, key,
	).Scan(&entry.Size, &entry.StoredAt, &entry.Stores)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNoEntry
	}
	if err != nil {
		return Entry{}, fmt.Errorf("lookup %s/%s: %w", root, key, err)
	}
	return entry, nil
}

// Totals returns the number of distinct keys and their combined size
// recorded under root.
func (l *Ledger) Totals(ctx context.Context, root string) (count int64, size int64, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries WHERE root = ?`,
		root,
	).Scan(&count, &size)
	return
}
