// Package geocode resolves coordinates to a display name for new events.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider looks up the place name for a coordinate pair.
type Provider interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// cache is the subset of store.GeocodeStore the geocoder requires.
type cache interface {
	Get(ctx context.Context, lat, lon float64) (string, bool, error)
	Put(ctx context.Context, lat, lon float64, name string) error
}

type Geocoder struct {
	provider Provider
	cache    cache
	logger   *slog.Logger
}

// New returns a geocoder. provider and cache may be nil, in which case the
// lookup always falls back to formatted coordinates.
func New(provider Provider, cache cache, logger *slog.Logger) *Geocoder {
	return &Geocoder{provider: provider, cache: cache, logger: logger}
}

// Fallback formats the coordinates the way an unnamed location is shown.
func Fallback(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

// Reverse returns a place name for lat/lon from the cache, then the provider,
// then Fallback. It never fails.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) string {
	if g.cache != nil {
		name, ok, err := g.cache.Get(ctx, lat, lon)
		if err != nil {
			g.logger.Warn("geocode cache lookup failed", "error", err)
		} else if ok {
			return name
		}
	}

	if g.provider == nil {
		return Fallback(lat, lon)
	}

	name, err := g.provider.Reverse(ctx, lat, lon)
	if err != nil || name == "" {
		g.logger.Warn("reverse geocoding failed, using coordinates", "lat", lat, "lon", lon, "error", err)
		return Fallback(lat, lon)
	}

	if g.cache != nil {
		if err := g.cache.Put(ctx, lat, lon, name); err != nil {
			g.logger.Warn("failed to cache place name", "error", err)
		}
	}
	return name
}
