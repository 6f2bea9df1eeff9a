package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/events"
	"github.com/vbonduro/lifemap/internal/journal"
	"github.com/vbonduro/lifemap/internal/mapview"
	"github.com/vbonduro/lifemap/internal/mediastore"
)

// journeyCatalog is the subset of journey.Catalog that JourneyService requires.
type journeyCatalog interface {
	Init(ctx context.Context) (string, error)
	ActivePath() string
	Active(ctx context.Context) (string, error)
	Mirror(ctx context.Context) error
	List(ctx context.Context) ([]domain.CatalogEntry, error)
	SwitchTo(ctx context.Context, filename string) error
	Create(ctx context.Context, name string) (string, error)
	Rename(ctx context.Context, filename, newName string) (string, error)
	Delete(ctx context.Context, filename string) error
}

// popupRenderer is the subset of popup.Renderer that JourneyService requires.
type popupRenderer interface {
	Render(e domain.Event) (string, error)
}

// placeNamer is the subset of geocode.Geocoder that JourneyService requires.
type placeNamer interface {
	Reverse(ctx context.Context, lat, lon float64) string
}

// JourneyService runs every user interaction as one transaction against the
// active journal: load it, apply at most one change, save it and mirror it
// into the active catalog file. Calls are serialized.
type JourneyService struct {
	mu        sync.Mutex
	cached    *domain.Journal
	journals  *journal.Store
	catalog   journeyCatalog
	events    *events.Repository
	popups    popupRenderer
	geocoder  placeNamer
	threshold float64
	logger    *slog.Logger
}

func NewJourneyService(
	journals *journal.Store,
	catalog journeyCatalog,
	repo *events.Repository,
	popups popupRenderer,
	geocoder placeNamer,
	threshold float64,
	logger *slog.Logger,
) *JourneyService {
	return &JourneyService{
		journals:  journals,
		catalog:   catalog,
		events:    repo,
		popups:    popups,
		geocoder:  geocoder,
		threshold: threshold,
		logger:    logger,
	}
}

// Init prepares the working file and the active catalog entry.
func (s *JourneyService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, err := s.catalog.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize journeys: %w", err)
	}
	s.cached = nil
	s.logger.Info("journey service ready", "active_journey", active, "working_file", s.catalog.ActivePath())
	return nil
}

// load returns the active journal, reading it from disk when the cache is
// empty. Callers hold s.mu.
func (s *JourneyService) load() *domain.Journal {
	if s.cached == nil {
		s.cached = s.journals.Load(s.catalog.ActivePath())
	}
	return s.cached
}

// commit persists j. On failure the cache is dropped so the next call reads
// the last good state from disk. Mirroring into the catalog is best-effort.
func (s *JourneyService) commit(ctx context.Context, j *domain.Journal) error {
	journal.SortEvents(j.Events)
	if err := s.journals.Save(j, s.catalog.ActivePath()); err != nil {
		s.cached = nil
		return fmt.Errorf("failed to save journal: %w", err)
	}
	s.cached = j
	if err := s.catalog.Mirror(ctx); err != nil {
		s.logger.Error("failed to mirror journal into catalog", "error", err)
	}
	return nil
}

func (s *JourneyService) invalidate() {
	s.cached = nil
}

// Journal returns a copy of the active journal.
func (s *JourneyService) Journal(ctx context.Context) (*domain.Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJournal(s.load()), nil
}

// TimelineEntry is one line of the chronological event list.
type TimelineEntry struct {
	Seq     int         `json:"seq"`
	EventID int         `json:"event_id"`
	Date    domain.Date `json:"date"`
	Title   string      `json:"title"`
	Color   string      `json:"color"`
	Label   string      `json:"label"`
}

// Timeline lists the events in date order as "{n}. {date} — {title}".
func (s *JourneyService) Timeline(ctx context.Context) ([]TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := slices.Clone(s.load().Events)
	journal.SortEvents(sorted)
	entries := make([]TimelineEntry, 0, len(sorted))
	for i, e := range sorted {
		entries = append(entries, TimelineEntry{
			Seq:     i + 1,
			EventID: e.ID,
			Date:    e.Date,
			Title:   e.Title,
			Color:   mapview.ColorForDate(e.Date),
			Label:   fmt.Sprintf("%d. %s — %s", i+1, e.Date, e.Title),
		})
	}
	return entries, nil
}

// CreateEvent adds an event at lat/lon. Without a date, the capture date of
// the first photo is used when it has one, else today.
func (s *JourneyService) CreateEvent(ctx context.Context, f events.Fields, lat, lon float64, uploads []events.Upload) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Date.IsZero() {
		if taken := firstPhotoDate(uploads); taken != nil {
			f.Date = *taken
			s.logger.Debug("event date taken from photo metadata", "date", taken.String())
		}
	}

	j := s.load()
	e, err := s.events.Create(ctx, j, f, lat, lon, uploads)
	if err != nil {
		return nil, err
	}
	created := cloneEvent(*e)
	if err := s.commit(ctx, j); err != nil {
		s.events.Discard(ctx, created.Media.Paths())
		return nil, err
	}
	return &created, nil
}

// UpdateEvent applies c to event id and appends uploads to its media.
func (s *JourneyService) UpdateEvent(ctx context.Context, id int, c events.Changes, uploads []events.Upload) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.load()
	var before []string
	if e := events.Get(j, id); e != nil {
		before = e.Media.Paths()
	}

	e, err := s.events.Update(ctx, j, id, c, uploads)
	if err != nil {
		return nil, err
	}
	updated := cloneEvent(*e)
	if err := s.commit(ctx, j); err != nil {
		var added []string
		for _, p := range updated.Media.Paths() {
			if !slices.Contains(before, p) {
				added = append(added, p)
			}
		}
		s.events.Discard(ctx, added)
		return nil, err
	}
	return &updated, nil
}

// RemoveMedia deletes one asset from event id. It reports false when the event
// does not own path.
func (s *JourneyService) RemoveMedia(ctx context.Context, id int, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.load()
	removed, err := s.events.RemoveMedia(ctx, j, id, path)
	if err != nil || !removed {
		return false, err
	}
	if err := s.commit(ctx, j); err != nil {
		return false, err
	}
	return true, nil
}

func (s *JourneyService) DeleteEvent(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.load()
	if _, err := s.events.Delete(ctx, j, id); err != nil {
		return err
	}
	return s.commit(ctx, j)
}

// Map composes the map view of the active journal.
func (s *JourneyService) Map(ctx context.Context, opts mapview.Options) (*mapview.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mapview.Compose(s.load().Events, opts, s.popups)
}

func (s *JourneyService) ListJourneys(ctx context.Context) ([]domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.List(ctx)
}

func (s *JourneyService) ActiveJourney(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Active(ctx)
}

func (s *JourneyService) SwitchJourney(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.catalog.SwitchTo(ctx, filename); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *JourneyService) CreateJourney(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filename, err := s.catalog.Create(ctx, name)
	if err != nil {
		return "", err
	}
	s.invalidate()
	return filename, nil
}

func (s *JourneyService) RenameJourney(ctx context.Context, filename, newName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, err := s.catalog.Rename(ctx, filename, newName)
	if err != nil {
		return "", err
	}
	s.invalidate()
	return target, nil
}

func (s *JourneyService) DeleteJourney(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Delete(ctx, filename)
}

// Backup returns the working file byte for byte and a suggested download name.
func (s *JourneyService) Backup(ctx context.Context) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.catalog.ActivePath())
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read journal: %w", domain.ErrIO, err)
	}
	name, err := s.catalog.Active(ctx)
	if err != nil || name == "" {
		name = filepath.Base(s.catalog.ActivePath())
	}
	return data, name, nil
}

// Restore replaces the active journal with data once it validates.
func (s *JourneyService) Restore(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.journals.Restore(data, s.catalog.ActivePath()); err != nil {
		return err
	}
	s.invalidate()
	if err := s.catalog.Mirror(ctx); err != nil {
		s.logger.Error("failed to mirror restored journal into catalog", "error", err)
	}
	s.logger.Info("journal restored", "bytes", len(data))
	return nil
}

// PlaceName names a map position. Invalid coordinates are rejected; lookup
// failures fall back to the formatted coordinates.
func (s *JourneyService) PlaceName(ctx context.Context, lat, lon float64) (string, error) {
	if !domain.ValidCoordinates(lat, lon) {
		return "", fmt.Errorf("%w: coordinates out of range: %v, %v", domain.ErrValidation, lat, lon)
	}
	return s.geocoder.Reverse(ctx, round6(lat), round6(lon)), nil
}

// PhotoSuggestion holds event fields derived from a photo's EXIF block.
type PhotoSuggestion struct {
	Date         *domain.Date `json:"date,omitempty"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	LocationName string       `json:"location_name,omitempty"`
}

// SuggestFromPhoto reads capture date and position from a photo. A photo
// without EXIF data yields an empty suggestion.
func (s *JourneyService) SuggestFromPhoto(ctx context.Context, data []byte) (*PhotoSuggestion, error) {
	meta, err := mediastore.ReadPhotoMetadata(data)
	if err != nil {
		s.logger.Debug("photo has no usable metadata", "error", err)
		return &PhotoSuggestion{}, nil
	}

	sug := &PhotoSuggestion{}
	if meta.TakenAt != nil {
		d := domain.NewDate(*meta.TakenAt)
		sug.Date = &d
	}
	if meta.Latitude != nil && meta.Longitude != nil && domain.ValidCoordinates(*meta.Latitude, *meta.Longitude) {
		lat, lon := round6(*meta.Latitude), round6(*meta.Longitude)
		sug.Latitude, sug.Longitude = &lat, &lon
		sug.LocationName = s.geocoder.Reverse(ctx, lat, lon)
	}
	return sug, nil
}

func firstPhotoDate(uploads []events.Upload) *domain.Date {
	for _, up := range uploads {
		if up.Kind != domain.MediaPhoto {
			continue
		}
		meta, err := mediastore.ReadPhotoMetadata(up.Data)
		if err != nil || meta.TakenAt == nil {
			return nil
		}
		d := domain.NewDate(*meta.TakenAt)
		return &d
	}
	return nil
}

func cloneEvent(e domain.Event) domain.Event {
	e.Media.Photos = slices.Clone(e.Media.Photos)
	e.Media.Videos = slices.Clone(e.Media.Videos)
	return e
}

func cloneJournal(j *domain.Journal) *domain.Journal {
	out := &domain.Journal{Metadata: j.Metadata, Events: make([]domain.Event, 0, len(j.Events))}
	for _, e := range j.Events {
		out.Events = append(out.Events, cloneEvent(e))
	}
	return out
}
