// Package catalog keeps an index of songbook files in SQLite.
//
// Build modes:
//   - Default (CGO_ENABLED=0): uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): uses mattn/go-sqlite3
//
// Entries are keyed by file path. Re-indexing a path keeps its ID and
// replaces the metadata, so IDs stay stable across runs.
package catalog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/LeadSheetML/core/errors"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL DEFAULT '',
	artist     TEXT NOT NULL DEFAULT '',
	song_key   TEXT NOT NULL DEFAULT '',
	sections   INTEGER NOT NULL DEFAULT 0,
	chords     INTEGER NOT NULL DEFAULT 0,
	hash       TEXT NOT NULL,
	indexed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS songs_title ON songs (title);
`

const columns = `id, path, title, artist, song_key, sections, chords, hash, indexed_at`

// Entry is one indexed song file.
type Entry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	Key       string    `json:"key,omitempty"`
	Sections  int       `json:"sections"`
	Chords    int       `json:"chords"`
	Hash      string    `json:"hash"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// DriverInfo returns information about the compiled-in SQLite driver.
func DriverInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      driverType == "cgo",
		Package:    driverPackage,
	}
}

// Hash returns the hex BLAKE3 digest of a song source.
func Hash(source []byte) string {
	sum := blake3.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Catalog is a handle on an open catalog database.
type Catalog struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the catalog at path and applies the schema.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.NewIO("open catalog", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIO("open catalog", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("migrate catalog", path, err)
	}
	return &Catalog{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database path the catalog was opened with.
func (c *Catalog) Path() string { return c.path }

// Upsert stores e, keyed by e.Path. A new path gets a fresh UUID; an existing
// path keeps its ID. The stored entry is returned.
func (c *Catalog) Upsert(ctx context.Context, e Entry) (*Entry, error) {
	if e.Path == "" {
		return nil, errors.NewValidation("path", "is required")
	}
	if e.Hash == "" {
		return nil, errors.NewValidation("hash", "is required")
	}
	e.ID = uuid.NewString()
	e.IndexedAt = c.now().UTC()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO songs (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			song_key = excluded.song_key,
			sections = excluded.sections,
			chords = excluded.chords,
			hash = excluded.hash,
			indexed_at = excluded.indexed_at`,
		e.ID, e.Path, e.Title, e.Artist, e.Key, e.Sections, e.Chords, e.Hash,
		e.IndexedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.NewIO("upsert", e.Path, err)
	}

	stored, err := c.GetByPath(ctx, e.Path)
	if err != nil {
		return nil, err
	}
	logging.CatalogEvent("upsert", stored.ID, stored.Path)
	return stored, nil
}

// Get returns the entry with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+columns+` FROM songs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("song", id)
	}
	if err != nil {
		return nil, errors.NewIO("get", id, err)
	}
	return e, nil
}

// GetByPath returns the entry indexed for path.
func (c *Catalog) GetByPath(ctx context.Context, path string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+columns+` FROM songs WHERE path = ?`, path)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("song", path)
	}
	if err != nil {
		return nil, errors.NewIO("get", path, err)
	}
	return e, nil
}

// List returns entries ordered by title then path. A non-empty query keeps
// only entries whose title or artist contains it, ignoring case.
func (c *Catalog) List(ctx context.Context, query string) ([]*Entry, error) {
	q := `SELECT ` + columns + ` FROM songs`
	var args []any
	if query != "" {
		q += ` WHERE title LIKE ? ESCAPE '\' OR artist LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(query) + "%"
		args = append(args, pattern, pattern)
	}
	q += ` ORDER BY title COLLATE NOCASE, path`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewIO("list", c.path, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewIO("list", c.path, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIO("list", c.path, err)
	}
	return entries, nil
}

// Remove deletes the entry with the given ID.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id)
	if err != nil {
		return errors.NewIO("remove", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewIO("remove", id, err)
	}
	if n == 0 {
		return errors.NewNotFound("song", id)
	}
	logging.CatalogEvent("remove", id, "")
	return nil
}

// Count returns the number of indexed songs.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&n); err != nil {
		return 0, errors.NewIO("count", c.path, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		indexedAt string
	)
	if err := s.Scan(&e.ID, &e.Path, &e.Title, &e.Artist, &e.Key, &e.Sections, &e.Chords, &e.Hash, &indexedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, indexedAt)
	if err != nil {
		return nil, fmt.Errorf("bad indexed_at %q: %w", indexedAt, err)
	}
	e.IndexedAt = t
	return &e, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
