package handlers

type ConfigResponse struct {
	ServerURL         string   `json:"server_url"`
	DownloadDir       string   `json:"download_dir"`
	PollIntervalHours float64  `json:"poll_interval_hours"`
	LastSyncTimestamp *float64 `json:"last_sync_timestamp"`
}

type ConfigUpdateRequest struct {
	DownloadDir *string `json:"download_dir"`
	ServerURL   *string `json:"server_url"`
}

type ConfigUpdateResponse struct {
	Status string          `json:"status"`
	Config *ConfigResponse `json:"config"`
}
