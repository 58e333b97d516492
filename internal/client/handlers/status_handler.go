package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	photosync "github.com/openmined/photosync/internal/client/sync"
)

// StatusSource is satisfied by *photosync.Progress.
type StatusSource interface {
	Snapshot() photosync.Status
}

// StatusHandler handles status-related endpoints
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{
		source: source,
	}
}

// Status returns the progress of the current or last pass
//
//	@Summary		Get sync status
//	@Description	Returns the progress of the current or last pass
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	photosync.Status
//	@Router			/api/status [get]
func (h *StatusHandler) Status(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, h.source.Snapshot())
}
