package sync

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

type EventType string

const (
	EventSyncStarted    EventType = "sync_started"
	EventStatusUpdate   EventType = "status_update"
	EventPhotosFound    EventType = "photos_found"
	EventDownloading    EventType = "downloading"
	EventDownloaded     EventType = "downloaded"
	EventSkipped        EventType = "skipped"
	EventDownloadFailed EventType = "download_failed"
	EventSyncComplete   EventType = "sync_complete"
	EventSyncError      EventType = "sync_error"
	EventSyncCancelled  EventType = "sync_cancelled"
	EventHeartbeat      EventType = "heartbeat"
	EventStatus         EventType = "status"
)

// Event is one progress notification. Only the fields relevant to Type are
// set; MarshalJSON writes just those, flat next to "type".
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Message   string `json:"message,omitempty"`
	Count     int    `json:"count,omitempty"`
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	PhotoID   string `json:"photo_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Size      int64  `json:"size,omitempty"`

	Report *Report `json:"report,omitempty"`
	Status *Status `json:"data,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}
	if e.RunID != "" {
		m["run_id"] = e.RunID
	}
	if !e.Timestamp.IsZero() {
		m["timestamp"] = e.Timestamp
	}
	if e.Message != "" {
		m["message"] = e.Message
	}

	switch e.Type {
	case EventPhotosFound:
		m["count"] = e.Count
	case EventDownloading:
		m["current"], m["total"] = e.Current, e.Total
		m["photo_id"], m["filename"], m["media_type"] = e.PhotoID, e.Filename, e.MediaType
	case EventDownloaded:
		m["current"], m["total"] = e.Current, e.Total
		m["photo_id"], m["filename"] = e.PhotoID, e.Filename
		m["size"], m["size_human"] = e.Size, humanize.Bytes(uint64(e.Size))
	case EventSkipped, EventDownloadFailed:
		m["current"], m["total"], m["photo_id"] = e.Current, e.Total, e.PhotoID
	case EventStatus:
		m["data"] = e.Status
	}

	if r := e.Report; r != nil {
		m["report"] = r
		m["downloaded"], m["failed"], m["skipped"] = r.Downloaded, r.Failed, r.Skipped
		m["bytes_total"], m["bytes_total_human"] = r.Bytes, r.BytesHuman()
		m["duration_seconds"] = r.Duration().Seconds()
	}

	return json.Marshal(m)
}
