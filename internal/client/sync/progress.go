package sync

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is a point-in-time view of the current or last pass.
type Status struct {
	IsSyncing       bool       `json:"is_syncing"`
	RunID           string     `json:"run_id,omitempty"`
	CurrentPhoto    int        `json:"current_photo"`
	TotalPhotos     int        `json:"total_photos"`
	CurrentFilename string     `json:"current_filename"`
	DownloadedCount int        `json:"downloaded_count"`
	SkippedCount    int        `json:"skipped_count"`
	FailedCount     int        `json:"failed_count"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	BytesHuman      string     `json:"bytes_downloaded_human"`
	ProgressPercent float64    `json:"progress_percent"`
	Message         string     `json:"message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastSyncTime    *time.Time `json:"last_sync_time,omitempty"`
	LastReport      *Report    `json:"last_report,omitempty"`
}

// Progress folds engine events into a Status. Safe for concurrent readers.
type Progress struct {
	mu     sync.RWMutex
	status Status
}

func NewProgress() *Progress {
	return &Progress{}
}

// Snapshot returns a copy of the current status.
func (p *Progress) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.status
	s.BytesHuman = humanize.Bytes(uint64(s.BytesDownloaded))
	if s.TotalPhotos > 0 {
		s.ProgressPercent = float64(s.CurrentPhoto) / float64(s.TotalPhotos) * 100
	}
	return s
}

func (p *Progress) IsSyncing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.IsSyncing
}

func (p *Progress) Notify(e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.status
	switch e.Type {
	case EventSyncStarted:
		started := e.Timestamp
		*s = Status{
			IsSyncing:    true,
			RunID:        e.RunID,
			StartedAt:    &started,
			LastSyncTime: s.LastSyncTime,
			LastReport:   s.LastReport,
			Message:      e.Message,
		}
	case EventStatusUpdate:
		s.Message = e.Message
	case EventPhotosFound:
		s.TotalPhotos = e.Count
	case EventDownloading:
		s.CurrentPhoto, s.TotalPhotos = e.Current, e.Total
		s.CurrentFilename = e.Filename
	case EventDownloaded:
		s.DownloadedCount++
		s.BytesDownloaded += e.Size
		s.CurrentFilename = e.Filename
	case EventSkipped:
		s.SkippedCount++
	case EventDownloadFailed:
		s.FailedCount++
	case EventSyncComplete, EventSyncCancelled:
		s.IsSyncing = false
		s.Message = e.Message
		s.LastReport = e.Report
		if e.Report != nil && e.Report.CursorAdvanced() {
			finished := e.Timestamp
			s.LastSyncTime = &finished
		}
	case EventSyncError:
		s.IsSyncing = false
		s.ErrorMessage = e.Message
		s.LastReport = e.Report
	}
	return nil
}
