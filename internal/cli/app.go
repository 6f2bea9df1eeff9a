package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/vbonduro/lifemap/internal/config"
	"github.com/vbonduro/lifemap/internal/db"
	"github.com/vbonduro/lifemap/internal/events"
	"github.com/vbonduro/lifemap/internal/geocode"
	"github.com/vbonduro/lifemap/internal/geocode/nominatim"
	"github.com/vbonduro/lifemap/internal/journal"
	"github.com/vbonduro/lifemap/internal/journey"
	"github.com/vbonduro/lifemap/internal/logging"
	"github.com/vbonduro/lifemap/internal/mediastore/local"
	"github.com/vbonduro/lifemap/internal/popup"
	"github.com/vbonduro/lifemap/internal/service"
	"github.com/vbonduro/lifemap/internal/store"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	media   *local.LocalMediaStore
	service *service.JourneyService
	cleanup func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, cleanup: cleanup}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a.db, err = db.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a.media, err = local.NewLocalMediaStore(cfg.DataDir, cfg.MaxInlineVideoMB*1024*1024)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	journals := journal.NewStore(logger)
	catalog := journey.NewCatalog(cfg.DataDir, cfg.ActiveFile, journals, store.NewSettingsStore(a.db), a.media, logger)
	geocoder := geocode.New(newPlaceProvider(cfg, logger), store.NewGeocodeStore(a.db), logger)

	a.service = service.NewJourneyService(
		journals,
		catalog,
		events.NewRepository(a.media, logger),
		popup.NewRenderer(a.media),
		geocoder,
		cfg.NearestThreshold,
		logger,
	)
	if err := a.service.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return a, nil
}

// newPlaceProvider returns the reverse-geocoding backend, or nil when place
// names should always fall back to coordinates.
func newPlaceProvider(cfg *config.Config, logger *slog.Logger) geocode.Provider {
	if cfg.TestMode {
		logger.Info("test mode: reverse geocoding disabled")
		return nil
	}
	switch cfg.Geocoder {
	case "nominatim":
		logger.Info("using Nominatim reverse geocoder", "url", cfg.NominatimURL)
		return nominatim.NewClient(cfg.NominatimURL, cfg.GeocoderUserAgent)
	default:
		logger.Info("reverse geocoding disabled")
		return nil
	}
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
	a.cleanup()
}
