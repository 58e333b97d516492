package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	photosync "github.com/openmined/photosync/internal/client/sync"
)

var ErrInvalidDate = errors.New("invalid date format")

// SyncRunner starts and cancels background passes.
type SyncRunner interface {
	Start(opts photosync.RunOptions) error
	Cancel() bool
}

type SyncHandler struct {
	runner SyncRunner
}

func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// Start godoc
//
//	@Summary		Start a sync pass
//	@Description	Starts a pass in the background. since_date overrides the stored cursor for this pass only.
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SyncStartRequest	false	"Optional start date"
//	@Success		200		{object}	SyncResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Failure		409		{object}	ControlPlaneError
//	@Router			/api/sync [post]
func (h *SyncHandler) Start(c *gin.Context) {
	var req SyncStartRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
			return
		}
	}

	var opts photosync.RunOptions
	if req.SinceDate != "" {
		since, err := ParseSinceDate(req.SinceDate)
		if err != nil {
			AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidDate, err)
			return
		}
		opts.Since = &since
	}

	if err := h.runner.Start(opts); err != nil {
		if errors.Is(err, photosync.ErrSyncAlreadyRunning) {
			AbortWithError(c, http.StatusConflict, ErrCodeSyncRunning, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.PureJSON(http.StatusOK, SyncResponse{Status: SyncStatusStarted})
}

// Cancel godoc
//
//	@Summary		Cancel the running pass
//	@Description	The pass stops before its next photo. The photo being written is finished first.
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Router			/api/sync/cancel [post]
func (h *SyncHandler) Cancel(c *gin.Context) {
	status := SyncStatusNotRunning
	if h.runner.Cancel() {
		status = SyncStatusCancelled
	}
	c.PureJSON(http.StatusOK, SyncResponse{Status: status})
}

var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseSinceDate accepts ISO-8601 timestamps. Values without a zone are local time.
func ParseSinceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sinceLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
