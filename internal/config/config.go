// Package config loads application configuration from environment variables
// and the venue definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	BotName     string
	GitHubToken string
	ListenAddr  string
	DBPath      string
	VenuesFile  string

	WebhookSecret string
	AdminToken    string

	// RedisURL enables webhook delivery deduplication when set.
	RedisURL  string
	DedupeTTL time.Duration

	Workers      int
	PollInterval time.Duration
	WorkRoot     string

	PandocBinary   string
	ResourcesDir   string
	CompileTimeout time.Duration

	BuildToken     string
	ArchiveToken   string
	ServiceTimeout time.Duration
	HTTPTimeout    time.Duration
	CrossrefMailto string

	// S3Endpoint enables preview uploads when set.
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UseSSL       bool
	PreviewLinkTTL time.Duration
}

// HasObjectStore reports whether preview proofs can be uploaded.
func (c *Config) HasObjectStore() bool {
	return c.S3Endpoint != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file in the working directory is loaded first when present;
// variables already set in the environment win over it.
//
// REVIEWBOT_GITHUB_TOKEN is required. Optional variables with defaults:
// REVIEWBOT_BOT_NAME (whedon), REVIEWBOT_LISTEN_ADDR (127.0.0.1:8080),
// REVIEWBOT_DB_PATH (reviewbot.db), REVIEWBOT_VENUES_FILE (venues.yml),
// REVIEWBOT_WORKERS (4), REVIEWBOT_POLL_INTERVAL (2s),
// REVIEWBOT_DEDUPE_TTL (24h), REVIEWBOT_COMPILE_TIMEOUT (10m),
// REVIEWBOT_SERVICE_TIMEOUT (5m), REVIEWBOT_HTTP_TIMEOUT (30s),
// REVIEWBOT_PREVIEW_LINK_TTL (168h).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		BotName:        envString("REVIEWBOT_BOT_NAME", "whedon"),
		GitHubToken:    os.Getenv("REVIEWBOT_GITHUB_TOKEN"),
		ListenAddr:     envString("REVIEWBOT_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         envString("REVIEWBOT_DB_PATH", "reviewbot.db"),
		VenuesFile:     envString("REVIEWBOT_VENUES_FILE", "venues.yml"),
		WebhookSecret:  os.Getenv("REVIEWBOT_WEBHOOK_SECRET"),
		AdminToken:     os.Getenv("REVIEWBOT_ADMIN_TOKEN"),
		RedisURL:       os.Getenv("REVIEWBOT_REDIS_URL"),
		WorkRoot:       envString("REVIEWBOT_WORK_ROOT", filepath.Join(os.TempDir(), "reviewbot")),
		PandocBinary:   envString("REVIEWBOT_PANDOC", "pandoc"),
		ResourcesDir:   envString("REVIEWBOT_RESOURCES_DIR", "resources"),
		BuildToken:     os.Getenv("REVIEWBOT_BUILD_TOKEN"),
		ArchiveToken:   os.Getenv("REVIEWBOT_ARCHIVE_TOKEN"),
		CrossrefMailto: os.Getenv("REVIEWBOT_CROSSREF_MAILTO"),
		S3Endpoint:     os.Getenv("REVIEWBOT_S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("REVIEWBOT_S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("REVIEWBOT_S3_SECRET_KEY"),
		S3Bucket:       envString("REVIEWBOT_S3_BUCKET", "previews"),
	}

	if cfg.GitHubToken == "" {
		return nil, errors.New("REVIEWBOT_GITHUB_TOKEN is required")
	}

	var err error
	if cfg.Workers, err = envInt("REVIEWBOT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("REVIEWBOT_WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.S3UseSSL, err = envBool("REVIEWBOT_S3_USE_SSL", true); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"REVIEWBOT_POLL_INTERVAL", 2 * time.Second, &cfg.PollInterval},
		{"REVIEWBOT_DEDUPE_TTL", 24 * time.Hour, &cfg.DedupeTTL},
		{"REVIEWBOT_COMPILE_TIMEOUT", 10 * time.Minute, &cfg.CompileTimeout},
		{"REVIEWBOT_SERVICE_TIMEOUT", 5 * time.Minute, &cfg.ServiceTimeout},
		{"REVIEWBOT_HTTP_TIMEOUT", 30 * time.Second, &cfg.HTTPTimeout},
		{"REVIEWBOT_PREVIEW_LINK_TTL", 7 * 24 * time.Hour, &cfg.PreviewLinkTTL},
	}
	for _, d := range durations {
		if *d.dest, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.S3Endpoint != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, errors.New("REVIEWBOT_S3_ACCESS_KEY and REVIEWBOT_S3_SECRET_KEY are required with REVIEWBOT_S3_ENDPOINT")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
