package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// configFile is optional; environment variables override it.
const configFile = "lifemap.yaml"

// DefaultDBName is the state database created in DATA_DIR when DB_PATH is unset.
const DefaultDBName = ".lifemap.db"

type Config struct {
	ListenAddr        string
	DataDir           string
	ActiveFile        string
	DBPath            string
	NearestThreshold  float64
	MaxInlineVideoMB  int64
	Geocoder          string
	NominatimURL      string
	GeocoderUserAgent string
	LogLevel          string
	LogFormat         string
	LogFile           string
	TestMode          bool
}

// Load reads .env, an optional lifemap.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	defaults := map[string]any{
		"listen_addr":         ":8080",
		"data_dir":            ".",
		"active_file":         "life_events.json",
		"db_path":             "",
		"nearest_threshold":   0.5,
		"max_inline_video_mb": 15,
		"geocoder":            "none",
		"nominatim_url":       "https://nominatim.openstreetmap.org",
		"geocoder_user_agent": "lifemap/1.0",
		"log_level":           "info",
		"log_format":          "json",
		"log_file":            "",
		"lifemap_test_mode":   false,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	}

	dataDir, err := homedir.Expand(v.GetString("data_dir"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATA_DIR: %w", err)
	}
	dbPath := v.GetString("db_path")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, DefaultDBName)
	}
	if dbPath, err = homedir.Expand(dbPath); err != nil {
		return nil, fmt.Errorf("invalid DB_PATH: %w", err)
	}
	logFile, err := homedir.Expand(v.GetString("log_file"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_FILE: %w", err)
	}

	cfg := &Config{
		ListenAddr:        v.GetString("listen_addr"),
		DataDir:           dataDir,
		ActiveFile:        v.GetString("active_file"),
		DBPath:            dbPath,
		NearestThreshold:  v.GetFloat64("nearest_threshold"),
		MaxInlineVideoMB:  v.GetInt64("max_inline_video_mb"),
		Geocoder:          v.GetString("geocoder"),
		NominatimURL:      v.GetString("nominatim_url"),
		GeocoderUserAgent: v.GetString("geocoder_user_agent"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		LogFile:           logFile,
		TestMode:          v.GetBool("lifemap_test_mode"),
	}
	if cfg.NearestThreshold <= 0 {
		return nil, fmt.Errorf("NEAREST_THRESHOLD must be positive, got %v", cfg.NearestThreshold)
	}
	return cfg, nil
}

func envName(key string) string {
	return strings.ToUpper(key)
}
