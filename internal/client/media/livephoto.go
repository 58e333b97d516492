package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"

	"github.com/openmined/photosync/internal/client/filename"
	"github.com/openmined/photosync/internal/photosdk"
	"github.com/openmined/photosync/internal/utils"
)

func (d *Downloader) downloadLivePhoto(ctx context.Context, meta *photosdk.PhotoMetadata) Result {
	dl, err := d.source.DownloadLivePhoto(ctx, meta.ID)
	if err != nil {
		return failed(err)
	}
	defer dl.Close()

	boundary, err := partBoundary(dl.Header.Get("Content-Type"))
	if err != nil {
		return failed(err)
	}

	var (
		first   string
		total   int64
		written int
	)
	mr := multipart.NewReader(dl.Body, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failed(fmt.Errorf("%w: %v", ErrParse, err))
		}

		path, n, err := d.writePart(part)
		part.Close()
		if err != nil {
			return failed(err)
		}
		if path == "" {
			continue
		}

		slog.Debug("live photo component", "photo", meta.ID, "path", path, "size", n)
		if first == "" {
			first = path
		}
		total += n
		written++
	}

	if written == 0 {
		return failed(fmt.Errorf("%w: no components", ErrParse))
	}
	return saved(first, total, written)
}

// writePart stores one component. Parts without a Content-Disposition
// filename and parts with no content are skipped with an empty path.
func (d *Downloader) writePart(part *multipart.Part) (string, int64, error) {
	name := dispositionFilename(part.Header.Get("Content-Disposition"))
	if name == "" {
		return "", 0, nil
	}

	body := bufio.NewReader(part)
	if _, err := body.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("%w: %v", ErrParse, err)
	}

	path, err := filename.Resolve(d.fs, d.dir, name)
	if err != nil {
		return "", 0, err
	}
	n, err := utils.WriteReaderAtomic(d.fs, path, body, filePerm)
	if err != nil {
		return "", n, fmt.Errorf("media: write %s: %w", path, err)
	}
	return path, n, nil
}

func partBoundary(contentType string) (string, error) {
	if contentType == "" {
		return "", fmt.Errorf("%w: missing content-type", ErrParse)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: content-type %q: %v", ErrParse, contentType, err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: no boundary in %q", ErrParse, contentType)
	}
	return boundary, nil
}

// dispositionFilename returns the raw filename parameter. Unlike
// multipart.Part.FileName it keeps separators, which Resolve sanitizes.
func dispositionFilename(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
