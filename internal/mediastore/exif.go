package mediastore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// PhotoMetadata is what a photo's EXIF block says about where and when it was
// taken. Fields are nil when the photo does not carry them.
type PhotoMetadata struct {
	TakenAt   *time.Time `json:"taken_at,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
}

func ReadPhotoMetadata(data []byte) (*PhotoMetadata, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode exif: %w", err)
	}

	meta := &PhotoMetadata{}
	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}
	if lat, lon, err := x.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &lon
	}
	return meta, nil
}
