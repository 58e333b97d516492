package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/photosync/internal/client/config"
	photosync "github.com/openmined/photosync/internal/client/sync"
	"github.com/openmined/photosync/internal/utils"
)

// Client is the headless sync loop behind the root command.
type Client struct {
	mgr *photosync.Manager
}

func New(mgr *photosync.Manager) *Client {
	return &Client{mgr: mgr}
}

// RunOnce runs a single pass and returns its report.
func (c *Client) RunOnce(ctx context.Context) (*photosync.Report, error) {
	c.logStart("once")
	return c.mgr.Run(ctx, photosync.RunOptions{})
}

// Start runs a pass now and then every poll interval until ctx is done.
func (c *Client) Start(ctx context.Context) error {
	c.logStart("continuous")
	defer c.mgr.Close()

	err := c.mgr.RunScheduler(ctx)
	slog.Info("received interrupt signal, stopping client")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) logStart(mode string) {
	cfg := c.mgr.Config().Get()
	slog.Info("photosync client start",
		"mode", mode,
		"server", cfg.ServerURL,
		"downloadDir", cfg.DownloadDir,
		"stateFile", cfg.StateFile,
		"interval", cfg.PollInterval,
	)
	warnDefaultSecret(cfg)
}

func warnDefaultSecret(cfg *config.Config) {
	if cfg.UsesDefaultSecret() {
		slog.Warn("using the default development secret, set PHOTOSHARE_SECRET for real deployments", "secret", utils.MaskSecret(cfg.Secret))
	}
}
