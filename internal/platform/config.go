package platform

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheFile   = "file"
)

// Config is the process configuration, read from FOLIO_* variables.
type Config struct {
	RepoPath     string
	RepoURL      string
	RepoBranch   string
	TasksDSN     string
	SearchDB     string
	Cache        string
	CacheTTL     time.Duration
	LockTimeout  time.Duration
	Workers      int
	PollInterval time.Duration
	WebhookURL   string
	SiteURL      string
	NavExclude   []string
}

// LoadEnv reads .env files into the environment without overriding
// variables already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadConfig reads the configuration from the environment and applies
// defaults. An empty TasksDSN or SearchDB means a file under the system
// dir of the resolved repository path.
func LoadConfig() (Config, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		v := getEnv(key, "")
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		v := getEnv(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return n
	}

	cfg := Config{
		RepoPath:     getEnv("FOLIO_REPO_PATH", "."),
		RepoURL:      getEnv("FOLIO_REPO_URL", ""),
		RepoBranch:   getEnv("FOLIO_REPO_BRANCH", ""),
		TasksDSN:     getEnv("FOLIO_TASKS_DSN", ""),
		SearchDB:     getEnv("FOLIO_SEARCH_DB", ""),
		Cache:        getEnv("FOLIO_CACHE", CacheFile),
		CacheTTL:     duration("FOLIO_CACHE_TTL", 30*time.Minute),
		LockTimeout:  duration("FOLIO_LOCK_TIMEOUT", 10*time.Second),
		Workers:      integer("FOLIO_WORKERS", 2),
		PollInterval: duration("FOLIO_POLL_INTERVAL", time.Second),
		WebhookURL:   getEnv("FOLIO_WEBHOOK_URL", ""),
		SiteURL:      getEnv("FOLIO_SITE_URL", ""),
		NavExclude:   splitList(getEnv("FOLIO_NAV_EXCLUDE", "Sidebar")),
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.RepoPath == "" {
		c.RepoPath = "."
	}
	if c.Cache == "" {
		c.Cache = CacheFile
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 10 * time.Second
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.NavExclude == nil {
		c.NavExclude = []string{"Sidebar"}
	}
}

var httpURL = regexp.MustCompile(`^https?://[^\s/]+`)

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RepoPath, validation.Required),
		validation.Field(&c.Cache, validation.Required, validation.In(CacheMemory, CacheFile)),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.LockTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.WebhookURL, validation.Match(httpURL)),
		validation.Field(&c.SiteURL, validation.Match(httpURL)),
	)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
