package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lifemap/internal/domain"
)

// stubMediaStore records stored and removed paths in memory.
type stubMediaStore struct {
	stored    map[string][]byte
	removed   []string
	n         int
	failAfter int // Store fails once this many files were stored; 0 disables
	removeErr map[string]error
}

func newStubMediaStore() *stubMediaStore {
	return &stubMediaStore{stored: map[string][]byte{}, removeErr: map[string]error{}}
}

func (s *stubMediaStore) Store(_ context.Context, kind domain.MediaKind, name string, r io.Reader) (string, error) {
	if s.failAfter > 0 && s.n >= s.failAfter {
		return "", fmt.Errorf("%w: disk full", domain.ErrIO)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.n++
	p := fmt.Sprintf("uploads/%s/%d_%s", kind, s.n, name)
	s.stored[p] = data
	return p, nil
}

func (s *stubMediaStore) Remove(_ context.Context, p string) error {
	if err := s.removeErr[p]; err != nil {
		return err
	}
	s.removed = append(s.removed, p)
	delete(s.stored, p)
	return nil
}

func newTestRepo(t *testing.T) (*Repository, *stubMediaStore) {
	t.Helper()
	ms := newStubMediaStore()
	r := NewRepository(ms, slog.Default())
	r.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r, ms
}

func emptyJournal() *domain.Journal {
	return &domain.Journal{Events: []domain.Event{}}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	r, ms := newTestRepo(t)
	j := emptyJournal()

	_, err := r.Create(context.Background(), j, Fields{Title: "   "}, 1, 2, []Upload{{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("x")}})

	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, j.Events)
	assert.Empty(t, ms.stored, "no media is stored for a rejected event")
}

func TestCreateRejectsOutOfRangeCoordinates(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Create(context.Background(), emptyJournal(), Fields{Title: "x"}, 95, 0, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateAssignsSequentialIDsRegardlessOfDate(t *testing.T) {
	r, _ := newTestRepo(t)
	j := emptyJournal()
	dates := []string{"2010-01-01", "1980-01-01", "2030-01-01"}

	for i, d := range dates {
		e, err := r.Create(context.Background(), j, Fields{Title: fmt.Sprintf("e%d", i), Date: domain.MustDate(d)}, 0, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, e.ID)
	}
}

func TestCreateNeverReusesDeletedIDs(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()

	for range 3 {
		_, err := r.Create(ctx, j, Fields{Title: "e"}, 0, 0, nil)
		require.NoError(t, err)
	}
	_, err := r.Delete(ctx, j, 2)
	require.NoError(t, err)

	e, err := r.Create(ctx, j, Fields{Title: "again"}, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, e.ID)
}

func TestCreateDefaults(t *testing.T) {
	r, _ := newTestRepo(t)
	j := emptyJournal()

	e, err := r.Create(context.Background(), j, Fields{Title: " Lisbon "}, 38.72, -9.14, nil)
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", e.Title)
	assert.Equal(t, "2024-06-01", e.Date.String())
	assert.Equal(t, "38.72000, -9.14000", e.Location.Name)
	assert.Equal(t, []string{}, e.Media.Photos)
	assert.Equal(t, []string{}, e.Media.Videos)
}

func TestCreateStoresMedia(t *testing.T) {
	r, ms := newTestRepo(t)
	j := emptyJournal()

	e, err := r.Create(context.Background(), j, Fields{Title: "Beach"}, 0, 0, []Upload{
		{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")},
		{Kind: domain.MediaVideo, Name: "b.mp4", Data: []byte("b")},
		{Kind: domain.MediaPhoto, Name: "c.png", Data: []byte("c")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"uploads/photos/1_a.jpg", "uploads/photos/3_c.png"}, e.Media.Photos)
	assert.Equal(t, []string{"uploads/videos/2_b.mp4"}, e.Media.Videos)
	assert.Len(t, ms.stored, 3)
}

func TestCreateRollsBackStoredMediaOnFailure(t *testing.T) {
	r, ms := newTestRepo(t)
	ms.failAfter = 1
	j := emptyJournal()

	_, err := r.Create(context.Background(), j, Fields{Title: "Beach"}, 0, 0, []Upload{
		{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")},
		{Kind: domain.MediaPhoto, Name: "b.jpg", Data: []byte("b")},
	})

	assert.True(t, errors.Is(err, domain.ErrIO))
	assert.Empty(t, j.Events)
	assert.Empty(t, ms.stored)
	assert.Equal(t, []string{"uploads/photos/1_a.jpg"}, ms.removed)
}

func TestUpdateNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	title := "x"
	_, err := r.Update(context.Background(), emptyJournal(), 9, Changes{Title: &title}, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateMergesOnlyProvidedFields(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "Old", Description: "keep", LocationName: "Here", Date: domain.MustDate("2001-01-01")}, 10, 20, nil)
	require.NoError(t, err)

	title := "New"
	lat := 11.5
	e, err := r.Update(ctx, j, 1, Changes{Title: &title, Latitude: &lat}, nil)
	require.NoError(t, err)

	assert.Equal(t, "New", e.Title)
	assert.Equal(t, "keep", e.Description)
	assert.Equal(t, "Here", e.Location.Name)
	assert.Equal(t, "2001-01-01", e.Date.String())
	assert.Equal(t, 11.5, e.Location.Latitude)
	assert.Equal(t, 20.0, e.Location.Longitude)
}

func TestUpdateAppendsMedia(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "e"}, 0, 0, []Upload{{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")}})
	require.NoError(t, err)

	e, err := r.Update(ctx, j, 1, Changes{}, []Upload{{Kind: domain.MediaPhoto, Name: "b.jpg", Data: []byte("b")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"uploads/photos/1_a.jpg", "uploads/photos/2_b.jpg"}, e.Media.Photos)
}

func TestUpdateValidation(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "e"}, 0, 0, nil)
	require.NoError(t, err)

	blank := ""
	_, err = r.Update(ctx, j, 1, Changes{Title: &blank}, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	lon := 200.0
	_, err = r.Update(ctx, j, 1, Changes{Longitude: &lon}, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "e", j.Events[0].Title)
	assert.Equal(t, 0.0, j.Events[0].Location.Longitude)
}

func TestRemoveMedia(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "e"}, 0, 0, []Upload{
		{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")},
		{Kind: domain.MediaVideo, Name: "v.mp4", Data: []byte("v")},
	})
	require.NoError(t, err)

	removed, err := r.RemoveMedia(ctx, j, 1, "uploads/videos/2_v.mp4")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{}, j.Events[0].Media.Videos)
	assert.Equal(t, []string{"uploads/photos/1_a.jpg"}, j.Events[0].Media.Photos)
	assert.Equal(t, []string{"uploads/videos/2_v.mp4"}, ms.removed)
}

func TestRemoveMediaNotOwnedIsNoOp(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "e"}, 0, 0, nil)
	require.NoError(t, err)

	removed, err := r.RemoveMedia(ctx, j, 1, "uploads/photos/other.jpg")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = r.RemoveMedia(ctx, j, 42, "uploads/photos/other.jpg")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, ms.removed)
}

func TestDeleteRemovesOnlyOwnMedia(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "one"}, 0, 0, []Upload{{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")}})
	require.NoError(t, err)
	_, err = r.Create(ctx, j, Fields{Title: "two"}, 0, 0, []Upload{
		{Kind: domain.MediaPhoto, Name: "b.jpg", Data: []byte("b")},
		{Kind: domain.MediaVideo, Name: "c.mp4", Data: []byte("c")},
	})
	require.NoError(t, err)

	deleted, err := r.Delete(ctx, j, 2)
	require.NoError(t, err)

	assert.Equal(t, "two", deleted.Title)
	assert.ElementsMatch(t, []string{"uploads/photos/2_b.jpg", "uploads/videos/3_c.mp4"}, ms.removed)
	assert.Contains(t, ms.stored, "uploads/photos/1_a.jpg")
	require.Len(t, j.Events, 1)
	assert.Equal(t, 1, j.Events[0].ID)
}

func TestDeleteContinuesWhenMediaRemovalFails(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()
	j := emptyJournal()
	_, err := r.Create(ctx, j, Fields{Title: "one"}, 0, 0, []Upload{
		{Kind: domain.MediaPhoto, Name: "a.jpg", Data: []byte("a")},
		{Kind: domain.MediaPhoto, Name: "b.jpg", Data: []byte("b")},
	})
	require.NoError(t, err)
	ms.removeErr["uploads/photos/1_a.jpg"] = fmt.Errorf("%w: permission denied", domain.ErrIO)

	_, err = r.Delete(ctx, j, 1)
	require.NoError(t, err)

	assert.Empty(t, j.Events)
	assert.Equal(t, []string{"uploads/photos/2_b.jpg"}, ms.removed)
}

func TestDeleteNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Delete(context.Background(), emptyJournal(), 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFindNearest(t *testing.T) {
	evts := []domain.Event{
		{ID: 1, Location: domain.Location{Latitude: 0, Longitude: 0}},
		{ID: 2, Location: domain.Location{Latitude: 10, Longitude: 10}},
	}

	tests := []struct {
		name      string
		lat, lon  float64
		threshold float64
		wantID    int
	}{
		{"close to first", 0.01, 0.01, 0.5, 1},
		{"close to second", 9.9, 10.05, 0.5, 2},
		{"empty space", 5, 5, 0.5, 0},
		{"distance equal to threshold", 0.25, 0.25, 0.5, 0},
		{"tighter threshold", 0.06, 0.06, 0.1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindNearest(evts, tt.lat, tt.lon, tt.threshold)
			if tt.wantID == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	assert.Nil(t, FindNearest(nil, 0, 0, 0.5))
}

func TestNextID(t *testing.T) {
	assert.Equal(t, 1, NextID(nil))
	assert.Equal(t, 8, NextID([]domain.Event{{ID: 3}, {ID: 7}, {ID: 1}}))
}
