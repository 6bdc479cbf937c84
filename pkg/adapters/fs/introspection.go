package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path               string     `json:"path"`
	SystemDir          string     `json:"system_dir"`
	RemoteURL          string     `json:"remote_url,omitempty"`
	Branch             string     `json:"branch,omitempty"`
	LockTimeout        string     `json:"lock_timeout"`
	WatcherActive      bool       `json:"watcher_active"`
	LastCommit         string     `json:"last_commit,omitempty"`
	LastExternalChange *time.Time `json:"last_external_change,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:               r.Path,
		SystemDir:          r.config.SystemDir,
		RemoteURL:          r.config.RemoteURL,
		Branch:             r.config.Branch,
		LockTimeout:        r.config.LockTimeout.String(),
		WatcherActive:      r.watcherActive,
		LastCommit:         r.lastCommit,
		LastExternalChange: r.lastExternalChange,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcherActive = active
}

func (r *Repository) recordExternalChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.lastExternalChange = &now
}
