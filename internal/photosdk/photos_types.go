package photosdk

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"

	SubtypeLivePhoto = "livePhoto"
)

// creationDate layouts accepted from the server, most specific first
var creationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Location is the optional geotag of a photo.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// PhotoMetadata is one entry of GET /photos. Read-only on the client.
type PhotoMetadata struct {
	ID               string    `json:"id"`
	CreationDate     string    `json:"creationDate"`
	ModificationDate string    `json:"modificationDate,omitempty"`
	MediaType        string    `json:"mediaType"`
	MediaSubtypes    []string  `json:"mediaSubtypes"`
	PixelWidth       int       `json:"pixelWidth"`
	PixelHeight      int       `json:"pixelHeight"`
	Duration         float64   `json:"duration"`
	IsFavorite       bool      `json:"isFavorite"`
	IsHidden         bool      `json:"isHidden"`
	Location         *Location `json:"location,omitempty"`
}

// Subtypes returns the media subtype tags as a set.
func (p *PhotoMetadata) Subtypes() mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(p.MediaSubtypes...)
}

func (p *PhotoMetadata) IsLivePhoto() bool {
	return p.Subtypes().Contains(SubtypeLivePhoto)
}

func (p *PhotoMetadata) IsVideo() bool {
	return strings.EqualFold(p.MediaType, MediaTypeVideo)
}

// CreatedAt parses CreationDate. ok is false when it is empty or unparseable.
func (p *PhotoMetadata) CreatedAt() (t time.Time, ok bool) {
	s := strings.TrimSpace(p.CreationDate)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range creationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ListPhotosResponse is the body of GET /photos
type ListPhotosResponse struct {
	Count  int             `json:"count"`
	Photos []PhotoMetadata `json:"photos"`
}
