package syncstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".sync_state"))
	_, ok := s.Load()
	assert.False(t, ok)
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".sync_state")
	s := NewStore(path)

	require.NoError(t, s.Save(1700000000.5))
	c, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, Cursor(1700000000.5), c)

	require.NoError(t, s.Save(1700000100))
	c, ok = s.Load()
	require.True(t, ok)
	assert.Equal(t, Cursor(1700000100), c, "save overwrites, never merges")
}

func TestStore_FileFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStoreFs(fs, "/.sync_state")
	require.NoError(t, s.Save(1700000000))

	data, err := afero.ReadFile(fs, "/.sync_state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_sync_timestamp": 1700000000}`, string(data))
}

func TestStore_CorruptIsAbsent(t *testing.T) {
	cases := map[string]string{
		"invalid json":  "{not json",
		"wrong type":    `{"last_sync_timestamp": "yesterday"}`,
		"missing field": `{}`,
		"negative":      `{"last_sync_timestamp": -5}`,
		"empty file":    ``,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/.sync_state", []byte(content), 0o644))

			_, ok := NewStoreFs(fs, "/.sync_state").Load()
			assert.False(t, ok)
		})
	}
}

func TestStore_ReadReportsCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/.sync_state", []byte("{"), 0o644))

	_, err := NewStoreFs(fs, "/.sync_state").read()
	assert.ErrorIs(t, err, ErrStateCorrupt)
}

func TestCursor_Time(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 250_000_000, time.UTC)
	c := CursorAt(at)
	assert.InDelta(t, 1705314600.25, c.Float(), 1e-6)
	assert.True(t, c.Time().Equal(at))
}
