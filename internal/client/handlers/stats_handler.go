package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/openmined/photosync/internal/client/config"
	"github.com/openmined/photosync/internal/client/syncstate"
	"github.com/openmined/photosync/internal/client/workspace"
)

type StatsHandler struct {
	holder *config.Holder
	source StatusSource
}

func NewStatsHandler(holder *config.Holder, source StatusSource) *StatsHandler {
	return &StatsHandler{holder: holder, source: source}
}

// Stats godoc
//
//	@Summary		Get download statistics
//	@Description	Counts the files in the download directory and reports free disk space
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Failure		500	{object}	ControlPlaneError
//	@Router			/api/stats [get]
func (h *StatsHandler) Stats(c *gin.Context) {
	cfg := h.holder.Get()

	ws, err := workspace.NewWorkspace(cfg.DownloadDir)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	stats, err := ws.Scan()
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	status := h.source.Snapshot()
	resp := StatsResponse{
		FileCount:      stats.FileCount,
		TotalSizeBytes: stats.TotalBytes,
		TotalSizeHuman: humanize.Bytes(uint64(stats.TotalBytes)),
		FileTypes:      stats.FileTypes,
		DownloadDir:    ws.Root,
		LastSync:       status.LastSyncTime,
		IsSyncing:      status.IsSyncing,
	}

	// no pass finished in this process yet: fall back to the stored cursor
	if resp.LastSync == nil {
		if cursor, ok := syncstate.NewStore(cfg.StateFile).Load(); ok {
			t := cursor.Time()
			resp.LastSync = &t
		}
	}

	if usage, err := ws.DiskUsage(); err != nil {
		slog.Debug("disk usage unavailable", "dir", ws.Root, "error", err)
	} else {
		resp.Disk = &DiskStats{
			TotalBytes: usage.Total,
			FreeBytes:  usage.Free,
			TotalHuman: humanize.Bytes(usage.Total),
			FreeHuman:  humanize.Bytes(usage.Free),
		}
	}

	c.PureJSON(http.StatusOK, resp)
}
