// Package journal loads, validates and persists journal files.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vbonduro/lifemap/internal/domain"
)

const (
	DefaultTitle  = "My Life Journey"
	DefaultAuthor = "Your Name"

	// corruptSuffix is appended to a journal file that failed to parse before
	// it is replaced by a default journal.
	corruptSuffix = ".corrupt"
)

type Store struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger, now: time.Now}
}

// Default returns an empty journal titled title, created today.
func (s *Store) Default(title string) *domain.Journal {
	if title == "" {
		title = DefaultTitle
	}
	today := domain.NewDate(s.now())
	return &domain.Journal{
		Metadata: domain.Metadata{
			Title:       title,
			Author:      DefaultAuthor,
			CreatedDate: today,
			LastUpdated: today,
		},
		Events: []domain.Event{},
	}
}

// Load reads the journal at path with events sorted by date. A missing, empty
// or malformed file is replaced by a default journal, which is returned; the
// malformed content is kept next to it with a .corrupt suffix. Load never fails.
func (s *Store) Load(path string) *domain.Journal {
	data, err := os.ReadFile(path)
	if err == nil && len(bytes.TrimSpace(data)) > 0 {
		j, derr := Decode(data)
		if derr == nil {
			SortEvents(j.Events)
			return j
		}
		s.logger.Warn("journal file is malformed, resetting to default", "path", path, "error", derr)
		if rerr := os.Rename(path, path+corruptSuffix); rerr != nil {
			s.logger.Error("failed to preserve malformed journal", "path", path, "error", rerr)
		}
	} else if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("journal file is unreadable, resetting to default", "path", path, "error", err)
	} else {
		s.logger.Warn("journal file is missing or empty, writing default", "path", path)
	}

	j := s.Default("")
	if err := s.write(j, path); err != nil {
		s.logger.Error("failed to write default journal", "path", path, "error", err)
	}
	return j
}

// Save stamps last_updated and atomically replaces path with the journal.
func (s *Store) Save(j *domain.Journal, path string) error {
	j.Metadata.LastUpdated = domain.NewDate(s.now())
	if j.Metadata.CreatedDate.IsZero() {
		j.Metadata.CreatedDate = j.Metadata.LastUpdated
	}
	return s.write(j, path)
}

// EnsureValid writes a default journal when path is absent or zero-length.
func (s *Store) EnsureValid(path string) error {
	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to stat %s: %w", domain.ErrIO, path, err)
	}
	return s.write(s.Default(""), path)
}

// Restore validates data as a journal and, if it is one, replaces path with it
// byte for byte.
func (s *Store) Restore(data []byte, path string) error {
	if _, err := Decode(data); err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

func (s *Store) write(j *domain.Journal, path string) error {
	normalize(j)
	data, err := Encode(j)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Encode serializes a journal the way it is stored on disk.
func Encode(j *domain.Journal) ([]byte, error) {
	normalize(j)
	data, err := json.MarshalIndent(j, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode journal: %w", err)
	}
	return append(data, '\n'), nil
}

// rawJournal keeps the top-level keys as raw messages so their presence can be
// checked before decoding.
type rawJournal struct {
	Autobiography json.RawMessage `json:"autobiography"`
	Events        json.RawMessage `json:"events"`
}

// Decode parses and validates a journal document. It requires both the
// autobiography object and a list-typed events key.
func Decode(data []byte) (*domain.Journal, error) {
	var raw rawJournal
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: journal is not a JSON object: %w", domain.ErrValidation, err)
	}
	if len(raw.Autobiography) == 0 || bytes.Equal(raw.Autobiography, []byte("null")) {
		return nil, fmt.Errorf("%w: missing autobiography", domain.ErrValidation)
	}
	if len(raw.Events) == 0 || raw.Events[0] != '[' {
		return nil, fmt.Errorf("%w: events must be a list", domain.ErrValidation)
	}

	j := &domain.Journal{}
	if err := json.Unmarshal(raw.Autobiography, &j.Metadata); err != nil {
		return nil, fmt.Errorf("%w: invalid autobiography: %w", domain.ErrValidation, err)
	}
	if err := json.Unmarshal(raw.Events, &j.Events); err != nil {
		return nil, fmt.Errorf("%w: invalid events: %w", domain.ErrValidation, err)
	}
	if err := validateEvents(j.Events); err != nil {
		return nil, err
	}
	normalize(j)
	return j, nil
}

func validateEvents(events []domain.Event) error {
	seen := make(map[int]bool, len(events))
	for _, e := range events {
		if e.ID <= 0 {
			return fmt.Errorf("%w: event %q has invalid id %d", domain.ErrValidation, e.Title, e.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate event id %d", domain.ErrValidation, e.ID)
		}
		seen[e.ID] = true
		if e.Date.IsZero() {
			return fmt.Errorf("%w: event %d has no date", domain.ErrValidation, e.ID)
		}
		if !domain.ValidCoordinates(e.Location.Latitude, e.Location.Longitude) {
			return fmt.Errorf("%w: event %d has coordinates out of range", domain.ErrValidation, e.ID)
		}
	}
	return nil
}

// normalize replaces nil lists with empty ones so they serialize as [].
func normalize(j *domain.Journal) {
	if j.Events == nil {
		j.Events = []domain.Event{}
	}
	for i := range j.Events {
		if j.Events[i].Media.Photos == nil {
			j.Events[i].Media.Photos = []string{}
		}
		if j.Events[i].Media.Videos == nil {
			j.Events[i].Media.Videos = []string{}
		}
	}
}

// SortEvents orders events by date; events on the same date keep their
// relative order.
func SortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, k int) bool {
		return events[i].Date.Before(events[k].Date.Time)
	})
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", domain.ErrIO, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rerr := os.Remove(tmpName); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			slog.Error("failed to remove temp file", "path", tmpName, "error", rerr)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: failed to write %s: %w", domain.ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: failed to sync %s: %w", domain.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to close %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to chmod %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to replace %s: %w", domain.ErrIO, path, err)
	}
	return nil
}
