// Package media downloads single photos: regular media as one file, live
// photos as the components of a multipart bundle.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/openmined/photosync/internal/client/filename"
	"github.com/openmined/photosync/internal/client/journal"
	"github.com/openmined/photosync/internal/photosdk"
	"github.com/openmined/photosync/internal/utils"
)

const filePerm = 0o644

// ErrParse marks a live photo response that cannot be split into components.
var ErrParse = errors.New("media: malformed live photo response")

// Source fetches raw photo bodies. *photosdk.Client implements it.
type Source interface {
	DownloadPhoto(ctx context.Context, id string) (*photosdk.Download, error)
	DownloadLivePhoto(ctx context.Context, id string) (*photosdk.Download, error)
}

// History remembers downloaded photos. *journal.Journal implements it.
type History interface {
	Get(photoID string) (*journal.Entry, error)
	Record(e *journal.Entry) error
}

type Downloader struct {
	source  Source
	dir     string
	fs      afero.Fs
	history History
	clock   clockwork.Clock
}

type Option func(*Downloader)

func WithFs(fs afero.Fs) Option {
	return func(d *Downloader) {
		d.fs = fs
	}
}

// WithHistory turns photos already recorded, whose file still exists, into skips.
func WithHistory(h History) Option {
	return func(d *Downloader) {
		d.history = h
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(d *Downloader) {
		d.clock = c
	}
}

// NewDownloader writes into dir. dir is created on the first write.
func NewDownloader(source Source, dir string, opts ...Option) *Downloader {
	d := &Downloader{
		source: source,
		dir:    dir,
		fs:     afero.NewOsFs(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Downloader) Dir() string {
	return d.dir
}

// Download fetches one photo. Errors are reported in the Result, never returned.
func (d *Downloader) Download(ctx context.Context, meta *photosdk.PhotoMetadata) Result {
	if prev := d.downloadedBefore(meta.ID); prev != nil {
		slog.Debug("download skip", "photo", meta.ID, "path", prev.Path)
		return skipped(prev.Path)
	}

	var res Result
	if meta.IsLivePhoto() {
		res = d.downloadLivePhoto(ctx, meta)
	} else {
		res = d.downloadRegular(ctx, meta)
	}

	if res.Status != StatusSaved {
		slog.Error("download failed", "photo", meta.ID, "live", meta.IsLivePhoto(), "error", res.Err)
		return res
	}

	slog.Info("downloaded", "photo", meta.ID, "path", res.Path, "size", humanize.Bytes(uint64(res.Size)), "components", res.Components)
	d.remember(meta.ID, res)
	return res
}

func (d *Downloader) downloadRegular(ctx context.Context, meta *photosdk.PhotoMetadata) Result {
	dl, err := d.source.DownloadPhoto(ctx, meta.ID)
	if err != nil {
		return failed(err)
	}
	defer dl.Close()

	name := dl.Header.Get(photosdk.HeaderOriginalFilename)
	if name == "" {
		name = filename.Derive(meta, dl.Header.Get(photosdk.HeaderMediaType))
	}

	path, err := filename.Resolve(d.fs, d.dir, name)
	if err != nil {
		return failed(err)
	}

	n, err := utils.WriteReaderAtomic(d.fs, path, dl.Body, filePerm)
	if err != nil {
		return failed(fmt.Errorf("media: write %s: %w", path, err))
	}
	return saved(path, n, 1)
}

func (d *Downloader) downloadedBefore(photoID string) *journal.Entry {
	if d.history == nil {
		return nil
	}
	prev, err := d.history.Get(photoID)
	if err != nil {
		slog.Warn("journal lookup failed", "photo", photoID, "error", err)
		return nil
	}
	if prev == nil {
		return nil
	}
	if ok, _ := afero.Exists(d.fs, prev.Path); !ok {
		return nil
	}
	return prev
}

func (d *Downloader) remember(photoID string, res Result) {
	if d.history == nil {
		return
	}
	err := d.history.Record(&journal.Entry{
		PhotoID:      photoID,
		Path:         res.Path,
		Size:         res.Size,
		Components:   res.Components,
		DownloadedAt: d.clock.Now(),
	})
	if err != nil {
		slog.Warn("journal record failed", "photo", photoID, "error", err)
	}
}
