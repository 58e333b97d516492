package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	photosync "github.com/openmined/photosync/internal/client/sync"
	"github.com/openmined/photosync/internal/client/wshub"
)

type ControlPlaneServer struct {
	config *ControlPlaneConfig
	server *http.Server
	hub    *wshub.Hub
}

// NewControlPlaneServer builds the dashboard server. The hub is registered as
// an observer of every pass mgr runs.
func NewControlPlaneServer(config *ControlPlaneConfig, mgr *photosync.Manager) (*ControlPlaneServer, error) {
	if _, err := addrToURL(config.Addr); err != nil {
		return nil, err
	}

	hub := wshub.NewHub(mgr.Progress().Snapshot)
	mgr.Observers().Add("websocket", hub)

	routes, err := SetupRoutes(mgr, hub, &RouteConfig{
		AuthToken: config.AuthToken,
		RateLimit: config.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config: config,
		server: httpServer,
		hub:    hub,
	}, nil
}

func (s *ControlPlaneServer) Start(ctx context.Context) error {
	url, _ := addrToURL(s.config.Addr)
	slog.Info("dashboard start", "url", url, "auth", s.config.AuthToken != "")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("dashboard stop")
	hubErr := s.hub.Shutdown(ctx)
	return errors.Join(s.server.Shutdown(ctx), hubErr)
}

// addrToURL turns a listen address into the URL printed for the user.
// An empty host means all interfaces.
func addrToURL(addr string) (string, error) {
	if strings.Contains(addr, "://") {
		return "", fmt.Errorf("invalid address %q: expected host:port", addr)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("invalid address %q: missing port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
