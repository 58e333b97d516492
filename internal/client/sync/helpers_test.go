package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/openmined/photosync/internal/client/media"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/photosdk"
)

var passStart = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type stubTransport struct {
	mu      sync.Mutex
	healthy bool
	photos  []photosdk.PhotoMetadata
	listErr error
	sinces  []*float64
}

func (s *stubTransport) Health(ctx context.Context) bool {
	return s.healthy && ctx.Err() == nil
}

func (s *stubTransport) ListPhotos(ctx context.Context, since *float64) (*photosdk.ListPhotosResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinces = append(s.sinces, since)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &photosdk.ListPhotosResponse{Count: len(s.photos), Photos: s.photos}, nil
}

type stubDownloader func(ctx context.Context, meta *photosdk.PhotoMetadata) media.Result

func (f stubDownloader) Download(ctx context.Context, meta *photosdk.PhotoMetadata) media.Result {
	return f(ctx, meta)
}

func savedAll(size int64) stubDownloader {
	return func(_ context.Context, meta *photosdk.PhotoMetadata) media.Result {
		return media.Result{Status: media.StatusSaved, Path: "/d/" + meta.ID + ".jpg", Size: size, Components: 1}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func memStore() *syncstate.Store {
	return syncstate.NewStoreFs(afero.NewMemMapFs(), "/.sync_state")
}

func photos(ids ...string) []photosdk.PhotoMetadata {
	out := make([]photosdk.PhotoMetadata, len(ids))
	for i, id := range ids {
		out[i] = photosdk.PhotoMetadata{ID: id, CreationDate: "2024-01-15T10:00:00Z", MediaType: "image"}
	}
	return out
}

func newTestEngine(t Transport, d Downloader, store CursorStore) (*Engine, *recorder, *clockwork.FakeClock) {
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(passStart)
	return NewEngine(t, d, store, WithObserver(rec), WithClock(clock)), rec, clock
}

var errBoom = errors.New("boom")
