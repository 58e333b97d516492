package media

import (
	"path/filepath"
)

type Status int

const (
	StatusFailed Status = iota
	StatusSaved
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result is the outcome of one photo download.
//
// For a live photo, Path is the first component written; Size and Components
// cover every component. Sibling components sit in the same directory.
type Result struct {
	Status     Status
	Path       string
	Size       int64
	Components int
	Err        error
}

func saved(path string, size int64, components int) Result {
	return Result{Status: StatusSaved, Path: path, Size: size, Components: components}
}

func skipped(path string) Result {
	return Result{Status: StatusSkipped, Path: path}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

func (r Result) Filename() string {
	if r.Path == "" {
		return ""
	}
	return filepath.Base(r.Path)
}
