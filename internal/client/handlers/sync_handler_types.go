package handlers

type SyncStartRequest struct {
	SinceDate string `json:"since_date"`
}

type SyncResponse struct {
	Status string `json:"status"`
}

const (
	SyncStatusStarted    = "started"
	SyncStatusCancelled  = "cancelled"
	SyncStatusNotRunning = "not_running"
)
