package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"FOLIO_REPO_PATH", "FOLIO_CACHE", "FOLIO_CACHE_TTL", "FOLIO_LOCK_TIMEOUT",
		"FOLIO_WORKERS", "FOLIO_POLL_INTERVAL", "FOLIO_NAV_EXCLUDE", "FOLIO_WEBHOOK_URL",
		"FOLIO_SITE_URL", "FOLIO_TASKS_DSN", "FOLIO_SEARCH_DB",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.RepoPath)
	assert.Equal(t, CacheFile, cfg.Cache)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"Sidebar"}, cfg.NavExclude)
	assert.Empty(t, cfg.TasksDSN)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FOLIO_REPO_PATH", "/srv/wiki")
	t.Setenv("FOLIO_REPO_URL", "git@example.com:docs/wiki.git")
	t.Setenv("FOLIO_TASKS_DSN", "postgres://folio@db/folio")
	t.Setenv("FOLIO_CACHE", "memory")
	t.Setenv("FOLIO_CACHE_TTL", "5m")
	t.Setenv("FOLIO_WORKERS", "4")
	t.Setenv("FOLIO_NAV_EXCLUDE", "Sidebar, drafts/**")
	t.Setenv("FOLIO_WEBHOOK_URL", "https://hooks.example.com/abc")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/wiki", cfg.RepoPath)
	assert.Equal(t, "git@example.com:docs/wiki.git", cfg.RepoURL)
	assert.Equal(t, "postgres://folio@db/folio", cfg.TasksDSN)
	assert.Equal(t, CacheMemory, cfg.Cache)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"Sidebar", "drafts/**"}, cfg.NavExclude)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"Bad Duration", "FOLIO_LOCK_TIMEOUT", "soon"},
		{"Bad Integer", "FOLIO_WORKERS", "many"},
		{"Unknown Cache", "FOLIO_CACHE", "redis"},
		{"Too Many Workers", "FOLIO_WORKERS", "1000"},
		{"Webhook Not HTTP", "FOLIO_WEBHOOK_URL", "ftp://hooks"},
		{"Site Not HTTP", "FOLIO_SITE_URL", "docs.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("FOLIO_SITE_URL=https://wiki.example.com\n"), 0644))

	t.Setenv("FOLIO_SITE_URL", "")
	os.Unsetenv("FOLIO_SITE_URL")
	require.NoError(t, LoadEnv(file, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "https://wiki.example.com", os.Getenv("FOLIO_SITE_URL"))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "missing.env")))
}

func TestResolveRepoPath(t *testing.T) {
	assert.Equal(t, ".", ResolveRepoPath("", false))
	assert.Equal(t, "wiki", ResolveRepoPath("wiki", false))

	inside := filepath.Join(os.TempDir(), "already-temp")
	assert.Equal(t, inside, ResolveRepoPath(inside, true))

	assert.Equal(t, filepath.Join(os.TempDir(), "folio-dev", "wiki"), ResolveRepoPath("wiki", true))
	assert.Equal(t, filepath.Join(os.TempDir(), "folio-dev", "default"), ResolveRepoPath(".", true))
}

func TestIsDevRunUnderGoTest(t *testing.T) {
	assert.True(t, IsDevRun())
}
