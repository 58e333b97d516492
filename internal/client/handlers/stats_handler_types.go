package handlers

import "time"

type DiskStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	TotalHuman string `json:"total_human"`
	FreeHuman  string `json:"free_human"`
}

type StatsResponse struct {
	FileCount      int            `json:"file_count"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	TotalSizeHuman string         `json:"total_size_human"`
	FileTypes      map[string]int `json:"file_types"`
	DownloadDir    string         `json:"download_dir"`
	LastSync       *time.Time     `json:"last_sync"`
	IsSyncing      bool           `json:"is_syncing"`
	Disk           *DiskStats     `json:"disk,omitempty"`
}
