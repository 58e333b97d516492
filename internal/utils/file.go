package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// tempMarker is part of every in-flight file name, so directory scans can skip them.
const tempMarker = ".photosync.tmp."

// IsTempFile reports whether name belongs to an unfinished atomic write.
func IsTempFile(name string) bool {
	return strings.Contains(filepath.Base(name), tempMarker)
}

// WriteFileAtomic writes data to path through a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	_, err := WriteReaderAtomic(fs, path, bytes.NewReader(data), perm)
	return err
}

// WriteReaderAtomic streams r into path with the same guarantees as WriteFileAtomic.
// It returns the number of bytes written.
func WriteReaderAtomic(fs afero.Fs, path string, r io.Reader, perm os.FileMode) (int64, error) {
	tmp, err := CreateTempBeside(fs, path)
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	n, err := copyAndClose(tmp, r)
	if err != nil {
		fs.Remove(tmpPath)
		return n, err
	}

	if err := fs.Chmod(tmpPath, perm); err != nil {
		fs.Remove(tmpPath)
		return n, fmt.Errorf("chmod temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return n, fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	return n, nil
}

// CreateTempBeside creates an empty temp file next to path. The caller owns cleanup.
func CreateTempBeside(fs afero.Fs, path string) (afero.File, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	f, err := afero.TempFile(fs, dir, filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

func copyAndClose(f afero.File, r io.Reader) (int64, error) {
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	return n, nil
}
