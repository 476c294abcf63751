// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, read from environment
// variables with a .env file as fallback.
type Config struct {
	// Storage
	DataDir   string
	DBPath    string
	ImagesDir string
	CacheDir  string
	CacheTTL  time.Duration

	// Provider API
	APIBaseURL     string
	APIToken       string
	APIAuthToken   string
	OrganisationID string

	// Embeddings and OCR
	EmbeddingHost  string
	EmbeddingModel string
	OCRHost        string
	OCRModel       string

	// Sync behaviour
	SyncDays         int
	FullHistoryStart string
	DownloadWorkers  int
	KeepFiles        bool
}

// Load reads configuration from the environment. A .env file in the current
// directory is loaded first; real environment variables take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	cfg := &Config{
		DataDir:          dataDir,
		DBPath:           getEnv("DB_PATH", filepath.Join(dataDir, "raadsync.db")),
		ImagesDir:        getEnv("IMAGES_DIR", filepath.Join(dataDir, "images")),
		CacheDir:         getEnv("CACHE_DIR", filepath.Join(dataDir, "cache")),
		APIBaseURL:       getEnv("API_BASE_URL", "https://api.notubiz.nl"),
		APIToken:         os.Getenv("API_TOKEN"),
		APIAuthToken:     os.Getenv("API_AUTH_TOKEN"),
		OrganisationID:   os.Getenv("ORGANISATION_ID"),
		EmbeddingHost:    getEnv("EMBEDDING_HOST", "http://localhost:11434/v1"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		OCRHost:          os.Getenv("OCR_HOST"),
		OCRModel:         os.Getenv("OCR_MODEL"),
		FullHistoryStart: getEnv("FULL_HISTORY_START", "2010-01-01"),
	}

	var err error
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SyncDays, err = getEnvInt("SYNC_DAYS", 365); err != nil {
		return nil, err
	}
	if cfg.DownloadWorkers, err = getEnvInt("DOWNLOAD_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.KeepFiles, err = getEnvBool("KEEP_FILES", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required")
	}
	if c.OrganisationID == "" {
		return fmt.Errorf("ORGANISATION_ID is required")
	}
	if c.SyncDays <= 0 {
		return fmt.Errorf("SYNC_DAYS must be greater than 0, got %d", c.SyncDays)
	}
	if c.DownloadWorkers <= 0 {
		return fmt.Errorf("DOWNLOAD_WORKERS must be greater than 0, got %d", c.DownloadWorkers)
	}
	if c.OCRModel != "" && c.OCRHost == "" {
		return fmt.Errorf("OCR_HOST is required when OCR_MODEL is set")
	}
	if _, err := time.Parse("2006-01-02", c.FullHistoryStart); err != nil {
		return fmt.Errorf("FULL_HISTORY_START must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// IncrementalRange returns the date range for an incremental sync: the last
// SyncDays days up to today.
func (c *Config) IncrementalRange(now time.Time) (string, string) {
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -c.SyncDays).Format("2006-01-02")
	return from, to
}

// FullRange returns the date range for a full history sync.
func (c *Config) FullRange(now time.Time) (string, string) {
	return c.FullHistoryStart, now.Format("2006-01-02")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// DocumentsDir is where raw downloaded documents are kept when KeepFiles is
// enabled.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.DataDir, "documents")
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 24h: %w", key, err)
	}
	return d, nil
}
