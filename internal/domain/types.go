package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in journal files.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return Date{t}, nil
}

// MustDate is ParseDate for literals known to be valid.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Journal is one autobiography: its metadata plus its events.
type Journal struct {
	Metadata Metadata `json:"autobiography"`
	Events   []Event  `json:"events"`
}

type Metadata struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	CreatedDate Date   `json:"created_date"`
	LastUpdated Date   `json:"last_updated"`
}

type Event struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Date        Date     `json:"date"`
	Location    Location `json:"location"`
	Description string   `json:"description"`
	Media       Media    `json:"media"`
}

type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Media holds the paths of the assets owned by an event, relative to the
// working directory.
type Media struct {
	Photos []string `json:"photos"`
	Videos []string `json:"videos"`
}

// MediaKind names the upload directory and the Media list an asset belongs to.
type MediaKind string

const (
	MediaPhoto MediaKind = "photos"
	MediaVideo MediaKind = "videos"
)

func (k MediaKind) Valid() bool {
	return k == MediaPhoto || k == MediaVideo
}

// Paths returns every asset path owned by the event, photos first.
func (m Media) Paths() []string {
	paths := make([]string, 0, len(m.Photos)+len(m.Videos))
	paths = append(paths, m.Photos...)
	return append(paths, m.Videos...)
}

// Empty reports whether the event references no media at all.
func (m Media) Empty() bool {
	return len(m.Photos) == 0 && len(m.Videos) == 0
}

// List returns a pointer to the list that holds assets of kind k.
func (m *Media) List(k MediaKind) *[]string {
	if k == MediaVideo {
		return &m.Videos
	}
	return &m.Photos
}

// CatalogEntry describes one journal file in the working directory.
type CatalogEntry struct {
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	EventCount int    `json:"event_count"`
	Active     bool   `json:"active"`
	Corrupt    bool   `json:"corrupt,omitempty"`
}

// ValidCoordinates reports whether lat/lon are within WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
