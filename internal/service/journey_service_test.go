package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lifemap/internal/db"
	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/events"
	"github.com/vbonduro/lifemap/internal/journal"
	"github.com/vbonduro/lifemap/internal/journey"
	"github.com/vbonduro/lifemap/internal/mapview"
	"github.com/vbonduro/lifemap/internal/mediastore/local"
	"github.com/vbonduro/lifemap/internal/popup"
	"github.com/vbonduro/lifemap/internal/store"
)

const workingFile = "life_events.json"

// stubGeocoder names every place the same.
type stubGeocoder struct{}

func (stubGeocoder) Reverse(_ context.Context, _, _ float64) string { return "Somewhere" }

type testEnv struct {
	svc      *JourneyService
	dir      string
	journals *journal.Store
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	dir := t.TempDir()
	media, err := local.NewLocalMediaStore(dir, 0)
	require.NoError(t, err)

	logger := slog.Default()
	journals := journal.NewStore(logger)
	catalog := journey.NewCatalog(dir, workingFile, journals, store.NewSettingsStore(d), media, logger)
	svc := NewJourneyService(
		journals,
		catalog,
		events.NewRepository(media, logger),
		popup.NewRenderer(media),
		stubGeocoder{},
		0.5,
		logger,
	)
	require.NoError(t, svc.Init(context.Background()))
	return &testEnv{svc: svc, dir: dir, journals: journals}
}

func (e *testEnv) onDisk(t *testing.T, filename string) *domain.Journal {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, filename))
	require.NoError(t, err)
	j, err := journal.Decode(data)
	require.NoError(t, err)
	return j
}

func photo(name string) events.Upload {
	return events.Upload{Kind: domain.MediaPhoto, Name: name, Data: []byte("photo:" + name)}
}

// exifJPEG builds the smallest JPEG carrying an EXIF DateTime tag.
func exifJPEG(dateTime string) []byte {
	var tiff bytes.Buffer
	tiff.WriteString("MM")
	_ = binary.Write(&tiff, binary.BigEndian, uint16(42))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(8))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(1))
	_ = binary.Write(&tiff, binary.BigEndian, uint16(0x0132)) // DateTime
	_ = binary.Write(&tiff, binary.BigEndian, uint16(2))      // ASCII
	_ = binary.Write(&tiff, binary.BigEndian, uint32(20))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(26))
	_ = binary.Write(&tiff, binary.BigEndian, uint32(0))
	tiff.WriteString(dateTime + "\x00")

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(2+6+tiff.Len()))
	out.WriteString("Exif\x00\x00")
	out.Write(tiff.Bytes())
	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

func TestJourneyServiceCreateEventPersistsAndMirrors(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	e, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Lisbon", Date: domain.MustDate("2019-05-02")}, 38.72, -9.14, []events.Upload{photo("tram.jpg")})
	require.NoError(t, err)
	assert.Equal(t, 1, e.ID)
	require.Len(t, e.Media.Photos, 1)
	assert.FileExists(t, filepath.Join(env.dir, filepath.FromSlash(e.Media.Photos[0])))

	working := env.onDisk(t, workingFile)
	require.Len(t, working.Events, 1)
	assert.Equal(t, "Lisbon", working.Events[0].Title)

	active, err := env.svc.ActiveJourney(ctx)
	require.NoError(t, err)
	mirrored := env.onDisk(t, active)
	assert.Equal(t, working.Events, mirrored.Events)
}

func TestJourneyServiceCreateEventAssignsIDsInCreationOrder(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	for i, d := range []string{"2020-01-01", "1970-01-01", "1995-01-01", "2001-01-01"} {
		e, err := env.svc.CreateEvent(ctx, events.Fields{Title: d, Date: domain.MustDate(d)}, 0, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, e.ID)
	}

	j, err := env.svc.Journal(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 1}, []int{j.Events[0].ID, j.Events[1].ID, j.Events[2].ID, j.Events[3].ID}, "stored in date order")
}

func TestJourneyServiceCreateEventRejectsEmptyTitle(t *testing.T) {
	env := newTestService(t)

	_, err := env.svc.CreateEvent(context.Background(), events.Fields{Title: ""}, 0, 0, []events.Upload{photo("a.jpg")})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	entries, err := os.ReadDir(filepath.Join(env.dir, "uploads", "photos"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJourneyServiceCreateEventUsesPhotoDate(t *testing.T) {
	env := newTestService(t)

	e, err := env.svc.CreateEvent(context.Background(), events.Fields{Title: "Old photo"}, 0, 0, []events.Upload{
		{Kind: domain.MediaPhoto, Name: "scan.jpg", Data: exifJPEG("2019:05:02 10:00:00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "2019-05-02", e.Date.String())
}

func TestJourneyServiceCreateEventDefaultsToToday(t *testing.T) {
	env := newTestService(t)

	e, err := env.svc.CreateEvent(context.Background(), events.Fields{Title: "Now"}, 0, 0, []events.Upload{photo("plain.jpg")})
	require.NoError(t, err)
	assert.Equal(t, domain.NewDate(time.Now()).String(), e.Date.String())
}

// brokenCatalog points the working file into a directory that does not exist
// so every save fails.
type brokenCatalog struct {
	journeyCatalog
	path string
}

func (c brokenCatalog) ActivePath() string                    { return c.path }
func (c brokenCatalog) Mirror(context.Context) error          { return nil }
func (c brokenCatalog) Active(context.Context) (string, error) { return "", nil }

func TestJourneyServiceCreateEventRemovesMediaWhenSaveFails(t *testing.T) {
	dir := t.TempDir()
	media, err := local.NewLocalMediaStore(dir, 0)
	require.NoError(t, err)
	logger := slog.Default()
	svc := NewJourneyService(
		journal.NewStore(logger),
		brokenCatalog{path: filepath.Join(dir, "missing", workingFile)},
		events.NewRepository(media, logger),
		popup.NewRenderer(media),
		stubGeocoder{},
		0.5,
		logger,
	)

	_, err = svc.CreateEvent(context.Background(), events.Fields{Title: "Lost"}, 0, 0, []events.Upload{photo("a.jpg"), photo("b.jpg")})
	assert.True(t, errors.Is(err, domain.ErrIO))

	entries, err := os.ReadDir(filepath.Join(dir, "uploads", "photos"))
	require.NoError(t, err)
	assert.Empty(t, entries, "stored uploads are removed when the journal cannot be saved")
}

func TestJourneyServiceUpdateEvent(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	_, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Beach", Description: "sunny"}, 1, 1, []events.Upload{photo("a.jpg")})
	require.NoError(t, err)

	title := "Beach day"
	lat, lon := 1.5, 1.25
	e, err := env.svc.UpdateEvent(ctx, 1, events.Changes{Title: &title, Latitude: &lat, Longitude: &lon}, []events.Upload{photo("b.jpg")})
	require.NoError(t, err)

	assert.Equal(t, "Beach day", e.Title)
	assert.Equal(t, "sunny", e.Description)
	assert.Len(t, e.Media.Photos, 2)
	assert.Equal(t, 1.5, e.Location.Latitude)

	saved := env.onDisk(t, workingFile)
	assert.Equal(t, "Beach day", saved.Events[0].Title)
	assert.Len(t, saved.Events[0].Media.Photos, 2)

	_, err = env.svc.UpdateEvent(ctx, 99, events.Changes{Title: &title}, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestJourneyServiceDeleteEventRemovesOnlyItsMedia(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	keep, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Keep"}, 0, 0, []events.Upload{photo("keep.jpg")})
	require.NoError(t, err)
	drop, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Drop"}, 5, 5, []events.Upload{
		photo("drop.jpg"),
		{Kind: domain.MediaVideo, Name: "drop.mp4", Data: []byte("video")},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteEvent(ctx, drop.ID))

	for _, p := range drop.Media.Paths() {
		assert.NoFileExists(t, filepath.Join(env.dir, filepath.FromSlash(p)))
	}
	assert.FileExists(t, filepath.Join(env.dir, filepath.FromSlash(keep.Media.Photos[0])))
	saved := env.onDisk(t, workingFile)
	require.Len(t, saved.Events, 1)
	assert.Equal(t, keep.ID, saved.Events[0].ID)

	err = env.svc.DeleteEvent(ctx, drop.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestJourneyServiceRemoveMedia(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	e, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Two photos"}, 0, 0, []events.Upload{photo("a.jpg"), photo("b.jpg")})
	require.NoError(t, err)

	removed, err := env.svc.RemoveMedia(ctx, e.ID, e.Media.Photos[0])
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, filepath.Join(env.dir, filepath.FromSlash(e.Media.Photos[0])))
	assert.Equal(t, []string{e.Media.Photos[1]}, env.onDisk(t, workingFile).Events[0].Media.Photos)

	removed, err = env.svc.RemoveMedia(ctx, e.ID, "uploads/photos/not-mine.jpg")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestJourneyServiceTimeline(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	_, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Later", Date: domain.MustDate("2021-01-01")}, 0, 0, nil)
	require.NoError(t, err)
	_, err = env.svc.CreateEvent(ctx, events.Fields{Title: "Earlier", Date: domain.MustDate("1999-01-01")}, 0, 0, nil)
	require.NoError(t, err)

	entries, err := env.svc.Timeline(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1. 1999-01-01 — Earlier", entries[0].Label)
	assert.Equal(t, "blue", entries[0].Color)
	assert.Equal(t, "2. 2021-01-01 — Later", entries[1].Label)
	assert.Equal(t, 1, entries[1].EventID)
}

func TestJourneyServiceMap(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	_, err := env.svc.CreateEvent(ctx, events.Fields{Title: "A", Date: domain.MustDate("2001-01-01")}, 10, 10, []events.Upload{photo("a.jpg")})
	require.NoError(t, err)

	view, err := env.svc.Map(ctx, mapview.Options{Cluster: true, Path: true, Timeline: true})
	require.NoError(t, err)

	require.Len(t, view.Markers, 1)
	assert.Equal(t, "green", view.Markers[0].Color)
	assert.Contains(t, view.Markers[0].Popup, `download="a.jpg"`)
	assert.Empty(t, view.Paths)
	assert.NotEmpty(t, view.Notice)
}

func TestJourneyServiceHandleInteraction(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	_, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Origin"}, 0, 0, nil)
	require.NoError(t, err)
	_, err = env.svc.CreateEvent(ctx, events.Fields{Title: "Far"}, 10, 10, nil)
	require.NoError(t, err)

	zoom := 6
	sess, action, err := env.svc.HandleInteraction(ctx, Session{EditMode: true}, Interaction{
		LastObjectClicked: &LatLng{Lat: 0.0100004, Lng: 0.01},
		Center:            &LatLng{Lat: 1, Lng: 2},
		Zoom:              &zoom,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionEdit, action.Kind)
	require.NotNil(t, action.Event)
	assert.Equal(t, "Origin", action.Event.Title)
	assert.Equal(t, 1, sess.EditingEventID)
	assert.Equal(t, &LatLng{Lat: 0.01, Lng: 0.01}, sess.PendingCoords)
	assert.Equal(t, &LatLng{Lat: 1, Lng: 2}, sess.Center)
	assert.Equal(t, 6, sess.Zoom)

	cancelled := CancelEdit(sess)
	assert.Zero(t, cancelled.EditingEventID)
	assert.Nil(t, cancelled.PendingCoords)
	assert.True(t, cancelled.EditMode)

	_, action, err = env.svc.HandleInteraction(ctx, Session{EditMode: true}, Interaction{LastObjectClicked: &LatLng{Lat: 5, Lng: 5}})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action.Kind, "a click far from every event selects nothing")

	_, action, err = env.svc.HandleInteraction(ctx, Session{}, Interaction{LastObjectClicked: &LatLng{Lat: 0, Lng: 0}})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, action.Kind, "marker clicks outside edit mode do nothing")

	_, action, err = env.svc.HandleInteraction(ctx, Session{}, Interaction{LastClicked: &LatLng{Lat: 48.8566142, Lng: 2.3522219}})
	require.NoError(t, err)
	assert.Equal(t, ActionAdd, action.Kind)
	assert.Equal(t, &LatLng{Lat: 48.856614, Lng: 2.352222}, action.Coords)
	assert.Equal(t, "Somewhere", action.DefaultName)
}

func TestJourneyServiceSwitchJourneyReloads(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	original, err := env.svc.ActiveJourney(ctx)
	require.NoError(t, err)
	_, err = env.svc.CreateEvent(ctx, events.Fields{Title: "In original"}, 0, 0, nil)
	require.NoError(t, err)

	created, err := env.svc.CreateJourney(ctx, "Side Trip")
	require.NoError(t, err)
	assert.Equal(t, "side-trip.json", created)

	j, err := env.svc.Journal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Side Trip", j.Metadata.Title)
	assert.Empty(t, j.Events)

	require.NoError(t, env.svc.SwitchJourney(ctx, original))
	j, err = env.svc.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, j.Events, 1)
	assert.Equal(t, "In original", j.Events[0].Title)

	err = env.svc.SwitchJourney(ctx, original)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	entries, err := env.svc.ListJourneys(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestJourneyServiceRenameAndDeleteJourney(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	original, err := env.svc.ActiveJourney(ctx)
	require.NoError(t, err)

	renamed, err := env.svc.RenameJourney(ctx, original, "Whole Life")
	require.NoError(t, err)
	assert.Equal(t, "whole-life.json", renamed)
	j, err := env.svc.Journal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Whole Life", j.Metadata.Title)

	err = env.svc.DeleteJourney(ctx, renamed)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, env.svc.DeleteJourney(ctx, original))
	assert.NoFileExists(t, filepath.Join(env.dir, original))
}

func TestJourneyServiceBackupAndRestore(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()
	_, err := env.svc.CreateEvent(ctx, events.Fields{Title: "Before"}, 0, 0, nil)
	require.NoError(t, err)

	data, name, err := env.svc.Backup(ctx)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(filepath.Join(env.dir, workingFile))
	require.NoError(t, err)
	assert.Equal(t, onDisk, data)
	assert.Equal(t, "my-life-journey.json", name)

	err = env.svc.Restore(ctx, []byte(`{"autobiography": {"title": "x"}, "events": {}}`))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	restored := []byte(`{"autobiography": {"title": "Restored", "author": "Me", "created_date": "2000-01-01", "last_updated": "2000-01-01"}, "events": [{"id": 7, "title": "Kept", "date": "2005-05-05", "location": {"name": "X", "latitude": 1, "longitude": 2}, "description": "", "media": {"photos": [], "videos": []}}]}`)
	require.NoError(t, env.svc.Restore(ctx, restored))

	j, err := env.svc.Journal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Restored", j.Metadata.Title)
	require.Len(t, j.Events, 1)
	assert.Equal(t, 7, j.Events[0].ID)
	assert.Equal(t, "Restored", env.onDisk(t, name).Metadata.Title, "restore is mirrored into the catalog")

	next, err := env.svc.CreateEvent(ctx, events.Fields{Title: "After"}, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, next.ID)
}

func TestJourneyServiceSuggestFromPhoto(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	sug, err := env.svc.SuggestFromPhoto(ctx, []byte("no exif here"))
	require.NoError(t, err)
	assert.Nil(t, sug.Date)
	assert.Nil(t, sug.Latitude)

	sug, err = env.svc.SuggestFromPhoto(ctx, exifJPEG("2012:12:21 08:30:00"))
	require.NoError(t, err)
	require.NotNil(t, sug.Date)
	assert.Equal(t, "2012-12-21", sug.Date.String())
	assert.Nil(t, sug.Latitude, "no GPS block")
}

func TestJourneyServicePlaceName(t *testing.T) {
	env := newTestService(t)

	name, err := env.svc.PlaceName(context.Background(), 48.85, 2.35)
	require.NoError(t, err)
	assert.Equal(t, "Somewhere", name)

	_, err = env.svc.PlaceName(context.Background(), 95, 0)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestJourneyServiceWatchPicksUpExternalEdits(t *testing.T) {
	env := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := env.svc.Journal(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.svc.Watch(ctx) }()

	external := env.journals.Default("Edited elsewhere")
	assert.Eventually(t, func() bool {
		data, err := journal.Encode(external)
		if err != nil {
			return false
		}
		if err := journal.WriteFileAtomic(filepath.Join(env.dir, workingFile), data); err != nil {
			return false
		}
		j, err := env.svc.Journal(ctx)
		return err == nil && j.Metadata.Title == "Edited elsewhere"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
