package nav

import (
	"fmt"

	"github.com/aretw0/introspection"
)

// CacheState exposes internal state for observability.
type CacheState struct {
	Store    string `json:"store"`
	TTL      string `json:"ttl"`
	Hits     int    `json:"hits"`
	Misses   int    `json:"misses"`
	Rebuilds int    `json:"rebuilds"`
}

// State implements introspection.Introspectable.
func (c *Cache) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheState{
		Store:    fmt.Sprintf("%T", c.store),
		TTL:      c.ttl.String(),
		Hits:     c.hits,
		Misses:   c.misses,
		Rebuilds: c.rebuilds,
	}
}

// ComponentType implements introspection.Component.
func (c *Cache) ComponentType() string {
	return "nav-cache"
}

var _ introspection.Introspectable = (*Cache)(nil)
var _ introspection.Component = (*Cache)(nil)
