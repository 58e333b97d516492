package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/photosync/internal/client/config"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/utils"
)

type ConfigHandler struct {
	holder *config.Holder
}

func NewConfigHandler(holder *config.Holder) *ConfigHandler {
	return &ConfigHandler{holder: holder}
}

// Get godoc
//
//	@Summary		Get configuration
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	ConfigResponse
//	@Router			/api/config [get]
func (h *ConfigHandler) Get(c *gin.Context) {
	c.PureJSON(http.StatusOK, configResponse(h.holder.Get()))
}

// Update godoc
//
//	@Summary		Update configuration
//	@Description	Creates download_dir when missing. The next pass uses the new settings; a running pass keeps its own.
//	@Tags			config
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ConfigUpdateRequest	true	"Settings to change"
//	@Success		200		{object}	ConfigUpdateResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Router			/api/config [post]
func (h *ConfigHandler) Update(c *gin.Context) {
	var req ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if req.DownloadDir != nil {
		dir, err := utils.ResolvePath(*req.DownloadDir)
		if err == nil {
			err = utils.EnsureDir(dir)
		}
		if err != nil {
			AbortWithError(c, http.StatusBadRequest, ErrCodeConfigFailed, fmt.Errorf("cannot create directory: %w", err))
			return
		}
	}

	cfg, err := h.holder.Update(func(cfg *config.Config) error {
		if req.DownloadDir != nil {
			cfg.DownloadDir = *req.DownloadDir
		}
		if req.ServerURL != nil {
			cfg.ServerURL = *req.ServerURL
		}
		return nil
	})
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeConfigFailed, err)
		return
	}

	if cfg.Path != "" {
		if err := cfg.Save(cfg.Path); err != nil {
			slog.Warn("config not persisted", "path", cfg.Path, "error", err)
		}
	}
	slog.Info("config updated", "server", cfg.ServerURL, "downloadDir", cfg.DownloadDir)

	c.PureJSON(http.StatusOK, ConfigUpdateResponse{
		Status: "ok",
		Config: configResponse(cfg),
	})
}

func configResponse(cfg *config.Config) *ConfigResponse {
	resp := &ConfigResponse{
		ServerURL:         cfg.ServerURL,
		DownloadDir:       cfg.DownloadDir,
		PollIntervalHours: cfg.PollInterval.Hours(),
	}
	if cursor, ok := syncstate.NewStore(cfg.StateFile).Load(); ok {
		ts := cursor.Float()
		resp.LastSyncTimestamp = &ts
	}
	return resp
}
