package sync

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/photosync/internal/client/media"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/hmacauth"
	"github.com/openmined/photosync/internal/photosdk"
	"github.com/openmined/photosync/internal/photosdk/photosdktest"
)

func TestEngine_ZeroPhotosAdvancesCursor(t *testing.T) {
	store := memStore()
	engine, rec, _ := newTestEngine(&stubTransport{healthy: true}, savedAll(1), store)

	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Found)

	cursor, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, syncstate.CursorAt(passStart), cursor)
	assert.Equal(t, cursor.Float(), report.Cursor)
	assert.Equal(t, StateIdle, engine.State())

	assert.Equal(t, []EventType{EventSyncStarted, EventStatusUpdate, EventPhotosFound, EventSyncComplete}, rec.types())
	assert.Equal(t, "No new photos to download", rec.last().Message)
}

func TestEngine_ListingFailureLeavesCursor(t *testing.T) {
	store := memStore()
	require.NoError(t, store.Save(1700000000))

	calls := 0
	d := stubDownloader(func(context.Context, *photosdk.PhotoMetadata) media.Result {
		calls++
		return media.Result{Status: media.StatusSaved}
	})
	engine, rec, _ := newTestEngine(&stubTransport{healthy: true, listErr: errBoom}, d, store)

	report, err := engine.Run(t.Context(), RunOptions{})
	assert.ErrorIs(t, err, ErrListFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, report.Downloaded)
	assert.Zero(t, calls)
	assert.False(t, report.CursorAdvanced())

	cursor, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, syncstate.Cursor(1700000000), cursor)

	last := rec.last()
	assert.Equal(t, EventSyncError, last.Type)
	assert.Contains(t, last.Message, "Failed to list photos")
}

func TestEngine_UnhealthyServerLeavesCursor(t *testing.T) {
	store := memStore()
	transport := &stubTransport{healthy: false}
	engine, rec, _ := newTestEngine(transport, savedAll(1), store)

	_, err := engine.Run(t.Context(), RunOptions{})
	assert.ErrorIs(t, err, ErrServerUnhealthy)
	assert.Empty(t, transport.sinces, "listing must not be attempted")

	_, ok := store.Load()
	assert.False(t, ok)
	assert.Equal(t, []EventType{EventSyncStarted, EventSyncError}, rec.types())
}

func TestEngine_PartialFailureContinues(t *testing.T) {
	store := memStore()
	d := stubDownloader(func(_ context.Context, meta *photosdk.PhotoMetadata) media.Result {
		if meta.ID == "first" {
			return media.Result{Status: media.StatusFailed, Err: errBoom}
		}
		return media.Result{Status: media.StatusSaved, Path: "/d/second.jpg", Size: 10, Components: 1}
	})
	engine, rec, _ := newTestEngine(&stubTransport{healthy: true, photos: photos("first", "second")}, d, store)

	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Found)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Failed)
	assert.EqualValues(t, 10, report.Bytes)

	_, ok := store.Load()
	assert.True(t, ok, "cursor advances even with failures")

	assert.Equal(t, []EventType{
		EventSyncStarted, EventStatusUpdate, EventPhotosFound,
		EventDownloading, EventDownloadFailed,
		EventDownloading, EventDownloaded,
		EventSyncComplete,
	}, rec.types())
}

func TestEngine_AllFailedStillAdvancesCursor(t *testing.T) {
	store := memStore()
	d := stubDownloader(func(context.Context, *photosdk.PhotoMetadata) media.Result {
		return media.Result{Status: media.StatusFailed, Err: errBoom}
	})
	engine, _, _ := newTestEngine(&stubTransport{healthy: true, photos: photos("a", "b")}, d, store)

	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	cursor, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, syncstate.CursorAt(passStart), cursor)
}

func TestEngine_CursorIsPassStartTime(t *testing.T) {
	store := memStore()
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(passStart)
	d := stubDownloader(func(context.Context, *photosdk.PhotoMetadata) media.Result {
		clock.Advance(time.Hour)
		return media.Result{Status: media.StatusSaved, Path: "/d/x", Size: 1}
	})
	engine := NewEngine(&stubTransport{healthy: true, photos: photos("a", "b")}, d, store, WithObserver(rec), WithClock(clock))

	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)

	cursor, _ := store.Load()
	assert.Equal(t, syncstate.CursorAt(passStart), cursor)
	assert.Equal(t, 2*time.Hour, report.Duration())
	assert.Equal(t, EventSyncComplete, rec.last().Type)
}

func TestEngine_UsesStoredCursorAndOverride(t *testing.T) {
	store := memStore()
	transport := &stubTransport{healthy: true}
	engine, _, _ := newTestEngine(transport, savedAll(1), store)

	_, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)
	require.NoError(t, store.Save(1700000000))
	_, err = engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)

	override := time.Unix(1600000000, 0)
	_, err = engine.Run(t.Context(), RunOptions{Since: &override})
	require.NoError(t, err)

	require.Len(t, transport.sinces, 3)
	assert.Nil(t, transport.sinces[0])
	require.NotNil(t, transport.sinces[1])
	assert.Equal(t, 1700000000.0, *transport.sinces[1])
	require.NotNil(t, transport.sinces[2])
	assert.Equal(t, 1600000000.0, *transport.sinces[2])

	cursor, _ := store.Load()
	assert.Equal(t, syncstate.CursorAt(passStart), cursor, "override still advances the cursor")
}

func TestEngine_CancelBetweenPhotos(t *testing.T) {
	store := memStore()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var downloaded []string
	d := stubDownloader(func(dctx context.Context, meta *photosdk.PhotoMetadata) media.Result {
		downloaded = append(downloaded, meta.ID)
		cancel()
		assert.NoError(t, dctx.Err(), "a started download is not interrupted")
		return media.Result{Status: media.StatusSaved, Path: "/d/" + meta.ID, Size: 1}
	})
	engine, rec, _ := newTestEngine(&stubTransport{healthy: true, photos: photos("a", "b", "c")}, d, store)

	report, err := engine.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, downloaded)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.Downloaded)

	cursor, ok := store.Load()
	require.True(t, ok, "listing completed, so the cursor advances")
	assert.Equal(t, syncstate.CursorAt(passStart), cursor)
	assert.Equal(t, EventSyncCancelled, rec.last().Type)
}

func TestEngine_CancelBeforeListing(t *testing.T) {
	store := memStore()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	engine, rec, _ := newTestEngine(&stubTransport{healthy: true}, savedAll(1), store)
	report, err := engine.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)

	_, ok := store.Load()
	assert.False(t, ok)
	assert.Equal(t, EventSyncCancelled, rec.last().Type)
}

func TestEngine_EventsCarryRunID(t *testing.T) {
	engine, rec, _ := newTestEngine(&stubTransport{healthy: true, photos: photos("a")}, savedAll(5), memStore())
	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	for _, e := range rec.events {
		assert.Equal(t, report.RunID, e.RunID)
		assert.Equal(t, passStart, e.Timestamp)
	}

	downloading := rec.events[3]
	assert.Equal(t, EventDownloading, downloading.Type)
	assert.Equal(t, 1, downloading.Current)
	assert.Equal(t, 1, downloading.Total)
	assert.Equal(t, "20240115_100000.jpg", downloading.Filename)
	assert.Equal(t, "image", downloading.MediaType)

	downloaded := rec.events[4]
	assert.Equal(t, "a.jpg", downloaded.Filename)
	assert.EqualValues(t, 5, downloaded.Size)
}

func TestEngine_EndToEnd(t *testing.T) {
	srv := photosdktest.New(t)
	srv.AddPhoto(photosdk.PhotoMetadata{ID: "ABC/L0/001", CreationDate: "2024-01-15T10:30:00Z", MediaType: "image"},
		photosdktest.File{Name: "IMG_0001.JPG", Data: []byte("one")})
	srv.AddLivePhoto(photosdk.PhotoMetadata{ID: "ABC/L0/002", CreationDate: "2024-01-15T10:31:00Z", MediaType: "image"},
		photosdktest.Part{Filename: "IMG_0002.HEIC", Data: []byte("still")},
		photosdktest.Part{Filename: "IMG_0002.MOV", Data: []byte("video")},
	)
	srv.AddPhoto(photosdk.PhotoMetadata{ID: "ABC/L0/003", MediaType: "video"},
		photosdktest.File{Status: http.StatusNotFound})

	dir := t.TempDir()
	client := srv.Client(t)
	store := syncstate.NewStore(filepath.Join(dir, ".sync_state"))
	downloads := filepath.Join(dir, "downloads")
	engine, _, _ := newTestEngine(client, media.NewDownloader(client, downloads), store)

	report, err := engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 2, report.Downloaded)
	assert.Equal(t, 1, report.Failed)
	assert.FileExists(t, filepath.Join(downloads, "IMG_0001.JPG"))
	assert.FileExists(t, filepath.Join(downloads, "IMG_0002.HEIC"))
	assert.FileExists(t, filepath.Join(downloads, "IMG_0002.MOV"))

	first := srv.Requests("/photos")
	require.Len(t, first, 1)
	assert.Empty(t, first[0].URL.RawQuery, "first sync sends no since")

	require.NoError(t, store.Save(1700000000))
	_, err = engine.Run(t.Context(), RunOptions{})
	require.NoError(t, err)

	listings := srv.Requests("/photos")
	require.Len(t, listings, 2)
	second := listings[1]
	assert.Equal(t, "since=1700000000", second.URL.RawQuery)
	assert.True(t, hmacauth.Verify(http.MethodGet, "/photos",
		second.Header.Get(hmacauth.HeaderTimestamp), second.Header.Get(hmacauth.HeaderSignature),
		srv.Secret, time.Now(), hmacauth.DefaultMaxAge), "signature covers the path without the query")
}
