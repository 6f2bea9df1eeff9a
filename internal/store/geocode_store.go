package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// GeocodeStore caches reverse-geocoding results. Coordinates are keyed at five
// decimal places (about one metre).
type GeocodeStore struct {
	db *sql.DB
}

func NewGeocodeStore(db *sql.DB) *GeocodeStore {
	return &GeocodeStore{db: db}
}

func coordKey(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func (s *GeocodeStore) Get(ctx context.Context, lat, lon float64) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM geocode_cache WHERE lat_key = ? AND lon_key = ?
	`, coordKey(lat), coordKey(lon)).Scan(&name)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cached place name: %w", err)
	}
	return name, true, nil
}

func (s *GeocodeStore) Put(ctx context.Context, lat, lon float64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (lat_key, lon_key, name) VALUES (?, ?, ?)
		ON CONFLICT(lat_key, lon_key) DO UPDATE SET name = excluded.name, created_at = datetime('now')
	`, coordKey(lat), coordKey(lon), name)
	if err != nil {
		return fmt.Errorf("failed to cache place name: %w", err)
	}
	return nil
}
