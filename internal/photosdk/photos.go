package photosdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	pathHealth = "/health"
	pathPhotos = "/photos"

	HeaderOriginalFilename = "X-Original-Filename"
	HeaderMediaType        = "X-Media-Type"
)

// EscapePhotoID percent-encodes every byte of id outside the unreserved set,
// including "/", so ids like "ABC/L0/001" stay one path segment.
func EscapePhotoID(id string) string {
	return strings.ReplaceAll(url.QueryEscape(id), "+", "%20")
}

// PhotoPath builds /photos/{escaped id}/{action}
func PhotoPath(id, action string) string {
	return pathPhotos + "/" + EscapePhotoID(id) + "/" + action
}

// FormatSince renders a cursor the way the server expects it in ?since=
func FormatSince(since float64) string {
	return strconv.FormatFloat(since, 'f', -1, 64)
}

// Health is true only when GET /health answers 200.
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.Request(ctx, http.MethodGet, pathHealth, nil)
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK
}

// ListPhotos lists photos created at or after since; a nil since lists everything
// and sends no since parameter at all.
func (c *Client) ListPhotos(ctx context.Context, since *float64) (*ListPhotosResponse, error) {
	var query url.Values
	if since != nil {
		query = url.Values{"since": []string{FormatSince(*since)}}
	}

	resp, err := c.Request(ctx, http.MethodGet, pathPhotos, query)
	if err != nil {
		return nil, err
	}

	var out ListPhotosResponse
	if err := resp.UnmarshalJson(&out); err != nil {
		return nil, fmt.Errorf("sdk: list photos: decode: %w", err)
	}
	return &out, nil
}

// Download is a streamed response body; Body must be closed.
type Download struct {
	Body          io.ReadCloser
	Header        http.Header
	ContentLength int64
}

func (d *Download) Close() error {
	return d.Body.Close()
}

// DownloadPhoto fetches the original bytes of a regular photo or video.
func (c *Client) DownloadPhoto(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, PhotoPath(id, "download"))
}

// DownloadLivePhoto fetches the multipart bundle of a live photo.
func (c *Client) DownloadLivePhoto(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, PhotoPath(id, "livephoto"))
}

func (c *Client) download(ctx context.Context, path string) (*Download, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, WithStream())
	if err != nil {
		return nil, err
	}
	return &Download{
		Body:          resp.Body,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}, nil
}
