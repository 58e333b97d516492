// Package syncstate persists the sync cursor: the start time of the last pass
// whose listing succeeded.
package syncstate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/openmined/photosync/internal/utils"
)

// ErrStateCorrupt marks an unreadable state file. Load treats it as "no prior sync".
var ErrStateCorrupt = errors.New("syncstate: corrupt state file")

// Cursor is a Unix timestamp in (fractional) seconds.
type Cursor float64

// CursorAt converts t to a Cursor with microsecond precision.
func CursorAt(t time.Time) Cursor {
	return Cursor(float64(t.UnixMicro()) / 1e6)
}

func (c Cursor) Time() time.Time {
	sec, frac := math.Modf(float64(c))
	return time.Unix(int64(sec), int64(frac*1e9))
}

func (c Cursor) Float() float64 {
	return float64(c)
}

type record struct {
	LastSyncTimestamp *float64 `json:"last_sync_timestamp"`
}

// Store reads and writes the state file. It is owned by a single sync engine.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(path string) *Store {
	return NewStoreFs(afero.NewOsFs(), path)
}

func NewStoreFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored cursor. ok is false when there is no state file or
// it cannot be parsed; a parse failure is logged and never returned.
func (s *Store) Load() (cursor Cursor, ok bool) {
	c, err := s.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("sync state unreadable, starting full sync", "path", s.path, "error", err)
		}
		return 0, false
	}
	if c == nil {
		return 0, false
	}
	return *c, true
}

func (s *Store) read() (*Cursor, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if rec.LastSyncTimestamp == nil {
		return nil, nil
	}
	v := *rec.LastSyncTimestamp
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("%w: invalid timestamp %v", ErrStateCorrupt, v)
	}
	c := Cursor(v)
	return &c, nil
}

// Save overwrites the state file with cursor. Readers see either the old or the new record.
func (s *Store) Save(cursor Cursor) error {
	v := cursor.Float()
	data, err := json.Marshal(record{LastSyncTimestamp: &v})
	if err != nil {
		return fmt.Errorf("syncstate: encode: %w", err)
	}
	if err := utils.WriteFileAtomic(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("syncstate: save %s: %w", s.path, err)
	}
	return nil
}
