package tasks

import (
	"sort"

	"github.com/aretw0/introspection"
)

// EngineState exposes internal state for observability.
type EngineState struct {
	Workers   int      `json:"workers"`
	Types     []string `json:"types"`
	Running   []string `json:"running,omitempty"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	running := make([]string, 0, len(e.running))
	for id := range e.running {
		running = append(running, id)
	}
	sort.Strings(running)

	return EngineState{
		Workers:   e.workers,
		Types:     e.registry.Types(),
		Running:   running,
		Processed: e.processed,
		Failed:    e.failed,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "task-engine"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
