// Package workspace owns the download directory: it creates it, holds the
// process lock that keeps a second sync client out, and summarizes its contents.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/openmined/photosync/internal/utils"
)

const lockFile = ".photosync.lock"

var ErrDownloadDirLocked = errors.New("download directory locked by another process")

type Workspace struct {
	Root string

	flock *flock.Flock
}

func NewWorkspace(downloadDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(downloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", downloadDir, err)
	}

	return &Workspace{
		Root:  root,
		flock: flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// Setup creates the download directory and takes the lock.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}
	if err := w.Lock(); err != nil {
		return err
	}
	slog.Debug("workspace", "root", w.Root)
	return nil
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock download directory: %w", err)
	}
	if !locked {
		return ErrDownloadDirLocked
	}
	return nil
}

// Unlock releases the lock and removes the lock file. It is a no-op when this
// process does not hold the lock.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock download directory: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// IsInternalFile is true for files the client itself keeps in the download
// directory: the lock and unfinished downloads.
func IsInternalFile(name string) bool {
	base := filepath.Base(name)
	return base == lockFile || utils.IsTempFile(base)
}

type Stats struct {
	FileCount  int            `json:"file_count"`
	TotalBytes int64          `json:"total_size_bytes"`
	FileTypes  map[string]int `json:"file_types"`
}

// Scan counts the downloaded files directly inside the directory.
// A missing directory yields empty stats.
func (w *Workspace) Scan() (*Stats, error) {
	stats := &Stats{FileTypes: make(map[string]int)}

	entries, err := os.ReadDir(w.Root)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.Root, err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || IsInternalFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.FileCount++
		stats.TotalBytes += info.Size()
		stats.FileTypes[strings.ToLower(filepath.Ext(entry.Name()))]++
	}
	return stats, nil
}

type DiskUsage struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
}

// DiskUsage reports the filesystem holding the directory, or its nearest
// existing parent when the directory is not created yet.
func (w *Workspace) DiskUsage() (*DiskUsage, error) {
	path := w.Root
	for !utils.DirExists(path) {
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return &DiskUsage{Total: usage.Total, Free: usage.Free}, nil
}
