package sync

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Report summarizes one pass. It is built by the engine and handed to observers.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Since      *float64  `json:"since,omitempty"`

	// Cursor is the value saved at the end of the pass; zero when the cursor was not advanced.
	Cursor float64 `json:"cursor,omitempty"`

	Found      int   `json:"found"`
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes_total"`

	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) BytesHuman() string {
	return humanize.Bytes(uint64(r.Bytes))
}

// CursorAdvanced reports whether the pass saved a new cursor.
func (r *Report) CursorAdvanced() bool {
	return r.Cursor != 0
}
