package duplicate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdxmph/imgdedup/pkg/classify"
	"github.com/pdxmph/imgdedup/pkg/digest"
	"github.com/pdxmph/imgdedup/pkg/phash"
)

// ErrCatalogLocked is returned when another process holds the catalog.
var ErrCatalogLocked = errors.New("catalog is in use by another process")

// Catalog persists accepted entries in SQLite so later batches can be
// checked against earlier ones. It is safe for concurrent use within a
// process; a file lock keeps other processes out.
type Catalog struct {
	db   *sql.DB
	mu   sync.Mutex
	lock *flock.Flock
	path string
}

// OpenCatalog opens (creating if needed) the catalog database at dbPath.
func OpenCatalog(dbPath string) (*Catalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	lock := flock.New(dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire catalog lock: %w", err)
	}
	if !ok {
		return nil, ErrCatalogLocked
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open database: %w", err)
	}

	c := &Catalog{db: db, lock: lock, path: dbPath}
	if err := c.init(); err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return c, nil
}

func (c *Catalog) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		family TEXT NOT NULL,
		label TEXT NOT NULL,
		digest TEXT,
		fingerprint TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_digest ON entries(digest);
	CREATE INDEX IF NOT EXISTS idx_entries_label ON entries(label);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Load returns every entry in insertion order.
func (c *Catalog) Load(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.query(ctx, `
		SELECT seq, family, label, digest, fingerprint
		FROM entries
		ORDER BY seq
	`)
}

// Record appends accepted entries in one transaction. A document whose digest
// is already stored is ignored.
func (c *Catalog) Record(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entries (family, label, digest, fingerprint, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		var dig, fp sql.NullString
		switch e.Family {
		case classify.Document:
			dig = sql.NullString{String: e.Digest.String(), Valid: true}
		case classify.Image:
			fp = sql.NullString{String: e.Fingerprint.String(), Valid: true}
		default:
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.Family.String(), e.Label, dig, fp, now); err != nil {
			return fmt.Errorf("record %s: %w", e.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (c *Catalog) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			family  string
			dig, fp sql.NullString
		)
		if err := rows.Scan(&e.Seq, &family, &e.Label, &dig, &fp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		switch family {
		case classify.Document.String():
			e.Family = classify.Document
			if e.Digest, err = digest.Parse(dig.String); err != nil {
				return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
			}
		case classify.Image.String():
			e.Family = classify.Image
			if e.Fingerprint, err = phash.ParseFingerprint(fp.String); err != nil {
				return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
			}
		default:
			return nil, fmt.Errorf("entry %d: unknown family %q", e.Seq, family)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Path returns the database location.
func (c *Catalog) Path() string { return c.path }

// Close closes the database and releases the file lock.
func (c *Catalog) Close() error {
	err := c.db.Close()
	if uerr := c.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// DefaultCatalogPath returns the default catalog database path.
func DefaultCatalogPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "imgdedup", "catalog.db")
}
