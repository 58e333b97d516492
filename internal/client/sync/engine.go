// Package sync runs incremental photo sync passes: list what changed since the
// stored cursor, download each photo in server order, then advance the cursor
// to the pass start time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/openmined/photosync/internal/client/filename"
	"github.com/openmined/photosync/internal/client/media"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/photosdk"
)

var (
	ErrServerUnhealthy = errors.New("sync: server health check failed")
	ErrListFailed      = errors.New("sync: listing failed")
)

// Transport is the part of the photo server API a pass needs.
type Transport interface {
	Health(ctx context.Context) bool
	ListPhotos(ctx context.Context, since *float64) (*photosdk.ListPhotosResponse, error)
}

type Downloader interface {
	Download(ctx context.Context, meta *photosdk.PhotoMetadata) media.Result
}

// CursorStore persists the sync cursor. *syncstate.Store implements it.
type CursorStore interface {
	Load() (syncstate.Cursor, bool)
	Save(c syncstate.Cursor) error
}

// RunOptions adjust a single pass.
type RunOptions struct {
	// Since overrides the stored cursor for listing. The cursor still advances
	// to the pass start time.
	Since *time.Time
}

// Engine runs one pass at a time; it is not safe for concurrent Run calls.
// Manager provides the mutual exclusion.
type Engine struct {
	transport  Transport
	downloader Downloader
	cursor     CursorStore
	observer   Observer
	clock      clockwork.Clock

	state atomic.Int32
}

type EngineOption func(*Engine)

func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

func WithClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

func NewEngine(t Transport, d Downloader, c CursorStore, opts ...EngineOption) *Engine {
	e := &Engine{
		transport:  t,
		downloader: d,
		cursor:     c,
		observer:   ObserverFunc(func(Event) error { return nil }),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// pass carries the per-run values shared by the emit helpers.
type pass struct {
	*Engine
	report *Report
}

func (p *pass) emit(ev Event) {
	ev.RunID = p.report.RunID
	ev.Timestamp = p.clock.Now()
	p.observer.Notify(ev)
}

// Run executes one pass. The returned report is never nil. The error is
// ErrServerUnhealthy, a wrapped ErrListFailed, a cursor save failure, or the
// context error when the pass was cancelled between photos.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	p := &pass{
		Engine: e,
		report: &Report{RunID: uuid.NewString(), StartedAt: e.clock.Now()},
	}
	defer e.setState(StateIdle)

	p.emit(Event{Type: EventSyncStarted, Message: "Sync started"})

	if !e.transport.Health(ctx) {
		if ctx.Err() != nil {
			return p.abort(ctx)
		}
		return p.fail(ErrServerUnhealthy, "Server health check failed")
	}

	e.setState(StateListing)
	since := e.since(opts)
	t0 := e.clock.Now()
	p.report.Since = since

	if since != nil {
		p.emit(Event{Type: EventStatusUpdate, Message: "Fetching photos since " + syncstate.Cursor(*since).Time().Format(time.RFC3339)})
	} else {
		p.emit(Event{Type: EventStatusUpdate, Message: "Fetching all photos (no date filter)"})
	}

	listing, err := e.transport.ListPhotos(ctx, since)
	if err != nil && ctx.Err() != nil {
		return p.abort(ctx)
	}
	if err != nil {
		return p.fail(fmt.Errorf("%w: %w", ErrListFailed, err), "Failed to list photos: "+err.Error())
	}

	photos := listing.Photos
	p.report.Found = len(photos)
	p.emit(Event{Type: EventPhotosFound, Count: len(photos)})
	slog.Info("sync listing", "run", p.report.RunID, "photos", len(photos), "since", since)

	e.setState(StateDownloading)
	cancelled := p.downloadAll(ctx, photos)

	e.setState(StateFinalizing)
	cursor := syncstate.CursorAt(t0)
	if err := e.cursor.Save(cursor); err != nil {
		return p.fail(fmt.Errorf("sync: save cursor: %w", err), "Failed to save sync state: "+err.Error())
	}
	p.report.Cursor = cursor.Float()
	p.report.FinishedAt = e.clock.Now()

	if cancelled {
		p.report.Cancelled = true
		p.emit(Event{Type: EventSyncCancelled, Message: "Sync cancelled", Report: p.report})
		slog.Info("sync cancelled", "run", p.report.RunID, "downloaded", p.report.Downloaded, "remaining", p.report.Found-p.processed())
		return p.report, context.Cause(ctx)
	}

	msg := fmt.Sprintf("Downloaded %d of %d photos", p.report.Downloaded, p.report.Found)
	if p.report.Found == 0 {
		msg = "No new photos to download"
	}
	p.emit(Event{Type: EventSyncComplete, Message: msg, Report: p.report})
	slog.Info("sync complete",
		"run", p.report.RunID,
		"downloaded", p.report.Downloaded,
		"skipped", p.report.Skipped,
		"failed", p.report.Failed,
		"bytes", p.report.BytesHuman(),
		"duration", p.report.Duration(),
	)
	return p.report, nil
}

// since picks the listing lower bound: the override, else the stored cursor,
// else nil for a full listing.
func (e *Engine) since(opts RunOptions) *float64 {
	if opts.Since != nil {
		v := syncstate.CursorAt(*opts.Since).Float()
		return &v
	}
	if c, ok := e.cursor.Load(); ok {
		v := c.Float()
		return &v
	}
	return nil
}

// downloadAll downloads photos in order and reports whether ctx stopped it early.
// Cancellation is checked between photos; a started download runs to completion.
func (p *pass) downloadAll(ctx context.Context, photos []photosdk.PhotoMetadata) bool {
	total := len(photos)
	dlCtx := context.WithoutCancel(ctx)

	for i := range photos {
		if ctx.Err() != nil {
			return true
		}

		photo := &photos[i]
		current := i + 1
		p.emit(Event{
			Type:      EventDownloading,
			Current:   current,
			Total:     total,
			PhotoID:   photo.ID,
			Filename:  filename.Derive(photo, ""),
			MediaType: photo.MediaType,
		})

		res := p.downloader.Download(dlCtx, photo)
		switch res.Status {
		case media.StatusSaved:
			p.report.Downloaded++
			p.report.Bytes += res.Size
			p.emit(Event{Type: EventDownloaded, Current: current, Total: total, PhotoID: photo.ID, Filename: res.Filename(), Size: res.Size})
		case media.StatusSkipped:
			p.report.Skipped++
			p.emit(Event{Type: EventSkipped, Current: current, Total: total, PhotoID: photo.ID})
		default:
			p.report.Failed++
			msg := ""
			if res.Err != nil {
				msg = res.Err.Error()
			}
			p.emit(Event{Type: EventDownloadFailed, Current: current, Total: total, PhotoID: photo.ID, Message: msg})
		}
	}
	return false
}

func (p *pass) processed() int {
	return p.report.Downloaded + p.report.Skipped + p.report.Failed
}

func (p *pass) fail(err error, msg string) (*Report, error) {
	p.setState(StateFailed)
	p.report.Error = msg
	p.report.FinishedAt = p.clock.Now()
	p.emit(Event{Type: EventSyncError, Message: msg, Report: p.report})
	slog.Error("sync failed", "run", p.report.RunID, "error", err)
	return p.report, err
}

// abort ends a pass cancelled before listing completed. The cursor is left alone.
func (p *pass) abort(ctx context.Context) (*Report, error) {
	p.report.Cancelled = true
	p.report.FinishedAt = p.clock.Now()
	p.emit(Event{Type: EventSyncCancelled, Message: "Sync cancelled before listing completed", Report: p.report})
	return p.report, context.Cause(ctx)
}
