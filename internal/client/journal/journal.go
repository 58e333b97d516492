// Package journal keeps a SQLite history of downloaded photos so a photo the
// server lists again is not downloaded twice.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openmined/photosync/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
    photo_id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    components INTEGER NOT NULL DEFAULT 1,
    downloaded_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_downloads_downloaded_at ON downloads(downloaded_at);
`

var (
	ErrNotOpen     = errors.New("journal: not open")
	ErrAlreadyOpen = errors.New("journal: already open")
)

// Entry is one downloaded photo.
type Entry struct {
	PhotoID      string
	Path         string
	Size         int64
	Components   int
	DownloadedAt time.Time
}

type dbEntry struct {
	PhotoID      string `db:"photo_id"`
	Path         string `db:"path"`
	Size         int64  `db:"size"`
	Components   int    `db:"components"`
	DownloadedAt string `db:"downloaded_at"`
}

func (e *dbEntry) entry() (*Entry, error) {
	at, err := time.Parse(time.RFC3339, e.DownloadedAt)
	if err != nil {
		return nil, fmt.Errorf("journal: bad timestamp for %s: %w", e.PhotoID, err)
	}
	return &Entry{
		PhotoID:      e.PhotoID,
		Path:         e.Path,
		Size:         e.Size,
		Components:   e.Components,
		DownloadedAt: at,
	}, nil
}

// Journal is safe for use by one sync engine at a time.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

func New(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func (j *Journal) Path() string {
	return j.dbPath
}

// Open connects to the database and creates the schema.
func (j *Journal) Open() error {
	if j.db != nil {
		return ErrAlreadyOpen
	}

	conn, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", j.dbPath, err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("journal: init schema: %w", err)
	}

	j.db = conn
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return ErrNotOpen
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	slog.Debug("journal closed", "path", j.dbPath)
	return nil
}

// Get returns the entry for photoID, or nil when the photo was never recorded.
func (j *Journal) Get(photoID string) (*Entry, error) {
	if j.db == nil {
		return nil, ErrNotOpen
	}

	var row dbEntry
	err := j.db.Get(&row, "SELECT photo_id, path, size, components, downloaded_at FROM downloads WHERE photo_id = ?", photoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", photoID, err)
	}
	return row.entry()
}

// Record inserts or replaces the entry for e.PhotoID.
func (j *Journal) Record(e *Entry) error {
	if j.db == nil {
		return ErrNotOpen
	}
	if e == nil {
		return errors.New("journal: nil entry")
	}

	components := e.Components
	if components < 1 {
		components = 1
	}
	row := dbEntry{
		PhotoID:      e.PhotoID,
		Path:         e.Path,
		Size:         e.Size,
		Components:   components,
		DownloadedAt: e.DownloadedAt.UTC().Format(time.RFC3339),
	}

	const query = `INSERT OR REPLACE INTO downloads (photo_id, path, size, components, downloaded_at)
	               VALUES (:photo_id, :path, :size, :components, :downloaded_at)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("journal: record %s: %w", e.PhotoID, err)
	}
	slog.Debug("journal record", "photo", e.PhotoID, "path", e.Path)
	return nil
}

// Forget removes photoID from the journal.
func (j *Journal) Forget(photoID string) error {
	if j.db == nil {
		return ErrNotOpen
	}
	if _, err := j.db.Exec("DELETE FROM downloads WHERE photo_id = ?", photoID); err != nil {
		return fmt.Errorf("journal: forget %s: %w", photoID, err)
	}
	return nil
}

func (j *Journal) Count() (int, error) {
	if j.db == nil {
		return 0, ErrNotOpen
	}
	var n int
	if err := j.db.Get(&n, "SELECT COUNT(*) FROM downloads"); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]*Entry, error) {
	if j.db == nil {
		return nil, ErrNotOpen
	}

	var rows []dbEntry
	err := j.db.Select(&rows, "SELECT photo_id, path, size, components, downloaded_at FROM downloads ORDER BY downloaded_at DESC, photo_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].entry()
		if err != nil {
			slog.Warn("journal skip entry", "photo", rows[i].PhotoID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
