// Package filename turns server metadata into safe, collision-free file names
// inside the download directory.
//
// Resolution is deterministic for a directory snapshot and assumes a single
// writer; the sync engine holds a directory lock to make that true across processes.
package filename

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/openmined/photosync/internal/photosdk"
)

const (
	timestampLayout = "20060102_150405"

	extVideo = ".mp4"
	extImage = ".jpg"

	fallbackName = "unnamed"
)

var invalidChars = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// Sanitize replaces each of < > : " / \ | ? * with an underscore.
// Names without those characters are returned unchanged.
func Sanitize(name string) string {
	return invalidChars.Replace(name)
}

// Derive builds a name for a download the server did not name. mediaType is
// the X-Media-Type header; when empty the metadata's media type is used.
func Derive(meta *photosdk.PhotoMetadata, mediaType string) string {
	var base string
	if created, ok := meta.CreatedAt(); ok {
		base = created.Format(timestampLayout)
	} else {
		base = strings.ReplaceAll(meta.ID, "/", "_")
	}

	if mediaType == "" {
		mediaType = meta.MediaType
	}
	if strings.EqualFold(mediaType, photosdk.MediaTypeVideo) {
		return base + extVideo
	}
	return base + extImage
}

// Resolve sanitizes desired and returns a path in dir that does not exist yet,
// appending _1, _2, ... before the extension on collision.
func Resolve(fs afero.Fs, dir, desired string) (string, error) {
	name := Sanitize(desired)
	switch name {
	case "", ".", "..":
		name = fallbackName
	}

	stem, ext := splitExt(name)
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("filename: stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

// splitExt splits off the last extension; dot files keep their full name as stem.
func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
