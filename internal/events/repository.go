// Package events implements create, update and delete of journal events and
// the coupling between an event and the media files it owns.
package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/vbonduro/lifemap/internal/domain"
)

// mediaStore is the subset of mediastore.MediaStore the repository requires.
type mediaStore interface {
	Store(ctx context.Context, kind domain.MediaKind, originalName string, r io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}

// Fields are the user-editable fields of a new event.
type Fields struct {
	Title        string
	Date         domain.Date
	LocationName string
	Description  string
}

// Changes lists the fields an update overwrites; nil fields are left alone.
type Changes struct {
	Title        *string
	Date         *domain.Date
	LocationName *string
	Description  *string
	Latitude     *float64
	Longitude    *float64
}

// Upload is one media file submitted with a create or update.
type Upload struct {
	Kind domain.MediaKind
	Name string
	Data []byte
}

// Repository mutates the events of the journal passed to each call. It holds no
// journal state of its own; callers persist the journal after a successful call.
type Repository struct {
	media  mediaStore
	logger *slog.Logger
	now    func() time.Time
}

func NewRepository(media mediaStore, logger *slog.Logger) *Repository {
	return &Repository{media: media, logger: logger, now: time.Now}
}

// NextID is one more than the largest id in events, or 1 for none.
func NextID(events []domain.Event) int {
	maxID := 0
	for _, e := range events {
		maxID = max(maxID, e.ID)
	}
	return maxID + 1
}

// Create validates f, stores the uploads and appends the new event to j. A zero
// date defaults to today.
func (r *Repository) Create(ctx context.Context, j *domain.Journal, f Fields, lat, lon float64, uploads []Upload) (*domain.Event, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if !domain.ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: coordinates (%v, %v) out of range", domain.ErrValidation, lat, lon)
	}
	date := f.Date
	if date.IsZero() {
		date = domain.NewDate(r.now())
	}
	locName := strings.TrimSpace(f.LocationName)
	if locName == "" {
		locName = fmt.Sprintf("%.5f, %.5f", lat, lon)
	}

	media, err := r.storeUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	e := domain.Event{
		ID:          NextID(j.Events),
		Title:       title,
		Date:        date,
		Location:    domain.Location{Name: locName, Latitude: lat, Longitude: lon},
		Description: f.Description,
		Media:       media,
	}
	j.Events = append(j.Events, e)
	r.logger.Info("event created", "event_id", e.ID, "photos", len(media.Photos), "videos", len(media.Videos))
	return &j.Events[len(j.Events)-1], nil
}

// Update merges c into event id and appends any uploads to its media lists.
func (r *Repository) Update(ctx context.Context, j *domain.Journal, id int, c Changes, uploads []Upload) (*domain.Event, error) {
	e := find(j, id)
	if e == nil {
		return nil, fmt.Errorf("%w: event %d", domain.ErrNotFound, id)
	}

	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if c.Latitude != nil || c.Longitude != nil {
		lat, lon := e.Location.Latitude, e.Location.Longitude
		if c.Latitude != nil {
			lat = *c.Latitude
		}
		if c.Longitude != nil {
			lon = *c.Longitude
		}
		if !domain.ValidCoordinates(lat, lon) {
			return nil, fmt.Errorf("%w: coordinates (%v, %v) out of range", domain.ErrValidation, lat, lon)
		}
	}

	added, err := r.storeUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	if c.Title != nil {
		e.Title = strings.TrimSpace(*c.Title)
	}
	if c.Date != nil && !c.Date.IsZero() {
		e.Date = *c.Date
	}
	if c.LocationName != nil {
		e.Location.Name = *c.LocationName
	}
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.Latitude != nil {
		e.Location.Latitude = *c.Latitude
	}
	if c.Longitude != nil {
		e.Location.Longitude = *c.Longitude
	}
	e.Media.Photos = append(e.Media.Photos, added.Photos...)
	e.Media.Videos = append(e.Media.Videos, added.Videos...)

	r.logger.Info("event updated", "event_id", id, "photos_added", len(added.Photos), "videos_added", len(added.Videos))
	return e, nil
}

// RemoveMedia deletes one asset owned by event id. It reports false, and does
// nothing, when the event does not own path.
func (r *Repository) RemoveMedia(ctx context.Context, j *domain.Journal, id int, path string) (bool, error) {
	e := find(j, id)
	if e == nil {
		return false, nil
	}

	for _, kind := range []domain.MediaKind{domain.MediaPhoto, domain.MediaVideo} {
		list := e.Media.List(kind)
		idx := slices.Index(*list, path)
		if idx < 0 {
			continue
		}
		if err := r.media.Remove(ctx, path); err != nil {
			return false, fmt.Errorf("failed to remove media %s: %w", path, err)
		}
		*list = slices.Delete(*list, idx, idx+1)
		r.logger.Info("media removed", "event_id", id, "path", path)
		return true, nil
	}
	return false, nil
}

// Delete removes event id and, best-effort, every asset it owns.
func (r *Repository) Delete(ctx context.Context, j *domain.Journal, id int) (*domain.Event, error) {
	idx := slices.IndexFunc(j.Events, func(e domain.Event) bool { return e.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: event %d", domain.ErrNotFound, id)
	}
	removed := j.Events[idx]

	for _, p := range removed.Media.Paths() {
		if err := r.media.Remove(ctx, p); err != nil {
			r.logger.Error("failed to delete media file", "event_id", id, "path", p, "error", err)
		}
	}
	j.Events = slices.Delete(j.Events, idx, idx+1)
	r.logger.Info("event deleted", "event_id", id)
	return &removed, nil
}

// Get returns event id or nil.
func Get(j *domain.Journal, id int) *domain.Event {
	return find(j, id)
}

// FindNearest returns the event with the smallest Manhattan distance
// |Δlat| + |Δlon| to (lat, lon), provided that distance is strictly below
// maxDistance. Ties go to the earliest event in the list.
func FindNearest(events []domain.Event, lat, lon, maxDistance float64) *domain.Event {
	var (
		best     *domain.Event
		bestDist = math.Inf(1)
	)
	for i := range events {
		d := math.Abs(events[i].Location.Latitude-lat) + math.Abs(events[i].Location.Longitude-lon)
		if d < bestDist {
			best, bestDist = &events[i], d
		}
	}
	if best == nil || bestDist >= maxDistance {
		return nil
	}
	return best
}

// storeUploads writes every upload, removing the ones already written if a
// later one fails.
func (r *Repository) storeUploads(ctx context.Context, uploads []Upload) (domain.Media, error) {
	media := domain.Media{Photos: []string{}, Videos: []string{}}
	for _, up := range uploads {
		p, err := r.media.Store(ctx, up.Kind, up.Name, bytes.NewReader(up.Data))
		if err != nil {
			r.Discard(ctx, media.Paths())
			return domain.Media{}, fmt.Errorf("failed to store %s: %w", up.Name, err)
		}
		list := media.List(up.Kind)
		*list = append(*list, p)
	}
	return media, nil
}

// Discard removes stored files whose journal change was never persisted.
func (r *Repository) Discard(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := r.media.Remove(ctx, p); err != nil {
			r.logger.Error("failed to discard media file", "path", p, "error", err)
		}
	}
}

func find(j *domain.Journal, id int) *domain.Event {
	for i := range j.Events {
		if j.Events[i].ID == id {
			return &j.Events[i]
		}
	}
	return nil
}
