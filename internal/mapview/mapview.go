// Package mapview turns journal events into the map description consumed by
// the front end: colored markers, labels, a chronological path and an
// optional timeline for playback.
package mapview

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/journal"
)

const (
	DefaultZoom = 2
	minZoom     = 2
	maxZoom     = 16

	// viewportPadding is added, in degrees, on every side of the event bounds.
	viewportPadding = 0.5

	// TimelinePeriod is the ISO-8601 duration of one playback step.
	TimelinePeriod = "P1M"
)

// DefaultCenter is the world view shown for a journal with no events.
var DefaultCenter = LatLng{20, 0}

// LatLng is a [latitude, longitude] pair.
type LatLng [2]float64

// Options selects the optional overlays of a view.
type Options struct {
	Cluster  bool
	Path     bool
	Timeline bool
}

type View struct {
	Center    LatLng             `json:"center"`
	Zoom      int                `json:"zoom"`
	Clustered bool               `json:"clustered"`
	Markers   []Marker           `json:"markers"`
	Labels    []Label            `json:"labels"`
	Paths     []Path             `json:"paths"`
	Timeline  *FeatureCollection `json:"timeline,omitempty"`
	// Notice explains why a requested overlay is missing.
	Notice string `json:"notice,omitempty"`
}

type Marker struct {
	EventID  int    `json:"event_id"`
	Seq      int    `json:"seq"`
	Position LatLng `json:"position"`
	Color    string `json:"color"`
	Tooltip  string `json:"tooltip"`
	Popup    string `json:"popup"`
}

// Label is the unclustered "{seq}. {date}" marker kept visible next to each
// event whatever the cluster state.
type Label struct {
	Seq      int    `json:"seq"`
	Date     string `json:"date"`
	Position LatLng `json:"position"`
}

type Path struct {
	Coordinates []LatLng `json:"coordinates"`
	Animated    bool     `json:"animated"`
	Color       string   `json:"color"`
	Weight      int      `json:"weight"`
	Opacity     float64  `json:"opacity"`
	DashArray   []int    `json:"dash_array,omitempty"`
	// Delay is the animation step in milliseconds.
	Delay int `json:"delay,omitempty"`
}

// FeatureCollection is a GeoJSON collection of timestamped points.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Period   string    `json:"period"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Geometry holds GeoJSON coordinates, which are [longitude, latitude].
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type FeatureProperties struct {
	Time    string `json:"time"`
	Seq     int    `json:"seq"`
	Color   string `json:"color"`
	Tooltip string `json:"tooltip"`
	Popup   string `json:"popup"`
}

// popupRenderer is the subset of popup.Renderer the composer requires.
type popupRenderer interface {
	Render(e domain.Event) (string, error)
}

// Compose builds the view for events. The input slice is not modified.
func Compose(events []domain.Event, opts Options, popups popupRenderer) (*View, error) {
	sorted := slices.Clone(events)
	journal.SortEvents(sorted)

	view := &View{
		Clustered: opts.Cluster,
		Markers:   make([]Marker, 0, len(sorted)),
		Labels:    []Label{},
		Paths:     []Path{},
	}
	view.Center, view.Zoom = Viewport(sorted)

	coords := make([]LatLng, 0, len(sorted))
	for i, e := range sorted {
		seq := i + 1
		pos := LatLng{e.Location.Latitude, e.Location.Longitude}
		html, err := popups.Render(e)
		if err != nil {
			return nil, err
		}
		view.Markers = append(view.Markers, Marker{
			EventID:  e.ID,
			Seq:      seq,
			Position: pos,
			Color:    ColorForDate(e.Date),
			Tooltip:  Tooltip(seq, e),
			Popup:    html,
		})
		if opts.Cluster {
			view.Labels = append(view.Labels, Label{Seq: seq, Date: e.Date.String(), Position: pos})
		}
		coords = append(coords, pos)
	}

	if opts.Path && len(coords) > 1 {
		view.Paths = append(view.Paths,
			Path{Coordinates: coords, Color: "#3388ff", Weight: 3, Opacity: 0.6},
			Path{Coordinates: coords, Animated: true, Color: "#ff5722", Weight: 4, Opacity: 0.8, DashArray: []int{10, 20}, Delay: 800},
		)
	}

	if opts.Timeline {
		fc, err := timeline(sorted, view.Markers)
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			view.Notice = err.Error()
		case err != nil:
			return nil, err
		default:
			view.Timeline = fc
		}
	}
	return view, nil
}

// timeline returns one timestamped point per event in date order, for
// playback at TimelinePeriod per step. It needs at least two events.
func timeline(sorted []domain.Event, markers []Marker) (*FeatureCollection, error) {
	if len(sorted) < 2 {
		return nil, insufficient(len(sorted))
	}
	fc := &FeatureCollection{Type: "FeatureCollection", Period: TimelinePeriod, Features: make([]Feature, 0, len(sorted))}
	for i, e := range sorted {
		m := markers[i]
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{e.Location.Longitude, e.Location.Latitude},
			},
			Properties: FeatureProperties{
				Time:    e.Date.Format(time.RFC3339),
				Seq:     m.Seq,
				Color:   m.Color,
				Tooltip: m.Tooltip,
				Popup:   m.Popup,
			},
		})
	}
	return fc, nil
}

func insufficient(n int) error {
	return fmt.Errorf("%w: timeline needs at least 2 events, journal has %d", domain.ErrInsufficientData, n)
}

// ColorForDate buckets a date by year.
func ColorForDate(d domain.Date) string {
	switch y := d.Year(); {
	case y < 1990:
		return "purple"
	case y < 2000:
		return "blue"
	case y < 2010:
		return "green"
	case y < 2020:
		return "orange"
	default:
		return "red"
	}
}

// Tooltip is plain text; the page binds it as a text node.
func Tooltip(seq int, e domain.Event) string {
	return fmt.Sprintf("%d. %s (%s)", seq, e.Title, e.Date)
}

// Viewport returns a center and zoom that fit every event with padding, or
// the world view when there are none.
func Viewport(events []domain.Event) (LatLng, int) {
	if len(events) == 0 {
		return DefaultCenter, DefaultZoom
	}

	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, e := range events {
		minLat = math.Min(minLat, e.Location.Latitude)
		maxLat = math.Max(maxLat, e.Location.Latitude)
		minLon = math.Min(minLon, e.Location.Longitude)
		maxLon = math.Max(maxLon, e.Location.Longitude)
	}
	minLat = math.Max(minLat-viewportPadding, -90)
	maxLat = math.Min(maxLat+viewportPadding, 90)
	minLon = math.Max(minLon-viewportPadding, -180)
	maxLon = math.Min(maxLon+viewportPadding, 180)

	center := LatLng{(minLat + maxLat) / 2, (minLon + maxLon) / 2}
	span := math.Max(maxLon-minLon, 2*(maxLat-minLat))
	zoom := int(math.Floor(math.Log2(360 / span)))
	return center, min(max(zoom, minZoom), maxZoom)
}
