package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openmined/photosync/internal/client/config"
	"github.com/openmined/photosync/internal/photosdk"
)

const healthTimeout = 10 * time.Second

type HealthResponse struct {
	ServerHealthy bool   `json:"server_healthy"`
	ServerURL     string `json:"server_url"`
	Error         string `json:"error,omitempty"`
}

type HealthHandler struct {
	holder *config.Holder
}

func NewHealthHandler(holder *config.Holder) *HealthHandler {
	return &HealthHandler{holder: holder}
}

// Health godoc
//
//	@Summary		Check the photo server
//	@Description	Calls the server's health endpoint with the current settings
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/api/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	cfg := h.holder.Get()
	resp := HealthResponse{ServerURL: cfg.ServerURL}

	client, err := photosdk.New(&photosdk.ClientConfig{
		BaseURL: cfg.ServerURL,
		Secret:  cfg.Secret,
		Timeout: min(cfg.Timeout, healthTimeout),
	})
	if err != nil {
		resp.Error = err.Error()
		c.PureJSON(http.StatusOK, resp)
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	resp.ServerHealthy = client.Health(ctx)

	c.PureJSON(http.StatusOK, resp)
}
