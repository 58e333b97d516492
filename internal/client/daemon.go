package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	photosync "github.com/openmined/photosync/internal/client/sync"
)

const shutdownTimeout = 10 * time.Second

// ClientDaemon serves the dashboard and, when scheduling is on, runs passes
// every poll interval next to it.
type ClientDaemon struct {
	mgr      *photosync.Manager
	cps      *ControlPlaneServer
	schedule bool
}

func NewClientDaemon(mgr *photosync.Manager, config *ControlPlaneConfig, schedule bool) (*ClientDaemon, error) {
	cps, err := NewControlPlaneServer(config, mgr)
	if err != nil {
		return nil, err
	}
	return &ClientDaemon{
		mgr:      mgr,
		cps:      cps,
		schedule: schedule,
	}, nil
}

func (c *ClientDaemon) Start(ctx context.Context) error {
	slog.Info("client daemon start", "schedule", c.schedule)
	warnDefaultSecret(c.mgr.Config().Get())

	// Create errgroup with derived context
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := c.cps.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		return nil
	})

	if c.schedule {
		eg.Go(func() error {
			if err := c.mgr.RunScheduler(egCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}

	// Launch goroutine to handle shutdown on context cancellation
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return c.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client daemon failure", "error", err)
		return err
	}

	slog.Info("client daemon stopped")
	return nil
}

// Stop cancels a running pass, waits for it and shuts the dashboard down.
func (c *ClientDaemon) Stop(ctx context.Context) error {
	c.mgr.Close()
	if err := c.cps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop dashboard: %w", err)
	}
	return nil
}
