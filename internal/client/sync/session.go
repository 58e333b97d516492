package sync

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/openmined/photosync/internal/client/config"
	"github.com/openmined/photosync/internal/client/journal"
	"github.com/openmined/photosync/internal/client/media"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/client/workspace"
	"github.com/openmined/photosync/internal/photosdk"
)

// OpenFunc builds an engine for one pass from a config snapshot. The closer
// releases everything the engine acquired and must be called on every path.
type OpenFunc func(cfg *config.Config, obs Observer) (*Engine, io.Closer, error)

type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenEngine locks the download directory, connects the transport and opens
// the journal when configured.
func OpenEngine(cfg *config.Config, obs Observer) (*Engine, io.Closer, error) {
	return openEngine(cfg, obs, clockwork.NewRealClock())
}

func openEngine(cfg *config.Config, obs Observer, clock clockwork.Clock) (eng *Engine, closer io.Closer, err error) {
	var release closers
	defer func() {
		if err != nil {
			if cerr := release.Close(); cerr != nil {
				slog.Warn("engine release", "error", cerr)
			}
		}
	}()

	ws, err := workspace.NewWorkspace(cfg.DownloadDir)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, nil, err
	}
	release = append(release, ws.Unlock)

	client, err := photosdk.New(&photosdk.ClientConfig{
		BaseURL: cfg.ServerURL,
		Secret:  cfg.Secret,
		Timeout: cfg.Timeout,
		Clock:   clock,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sync: transport: %w", err)
	}
	release = append(release, func() error { client.Close(); return nil })

	dlOpts := []media.Option{media.WithClock(clock)}
	if cfg.JournalPath != "" {
		j := journal.New(cfg.JournalPath)
		if err := j.Open(); err != nil {
			return nil, nil, err
		}
		release = append(release, j.Close)
		dlOpts = append(dlOpts, media.WithHistory(j))
	}

	eng = NewEngine(
		client,
		media.NewDownloader(client, ws.Root, dlOpts...),
		syncstate.NewStore(cfg.StateFile),
		WithObserver(obs),
		WithClock(clock),
	)
	return eng, release, nil
}
