package search

import (
	"time"

	"github.com/aretw0/introspection"
)

// IndexState exposes internal state for observability.
type IndexState struct {
	Path        string     `json:"path"`
	Documents   int        `json:"documents"`
	LastRebuild *time.Time `json:"last_rebuild,omitempty"`
}

// State implements introspection.Introspectable.
func (i *Index) State() any {
	i.stateMu.RLock()
	defer i.stateMu.RUnlock()
	return IndexState{Path: i.path, Documents: i.documents, LastRebuild: i.lastRebuild}
}

// ComponentType implements introspection.Component.
func (i *Index) ComponentType() string {
	return "search-index"
}

var _ introspection.Introspectable = (*Index)(nil)
var _ introspection.Component = (*Index)(nil)
