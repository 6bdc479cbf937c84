package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	RepositoryType string `json:"repository_type"`
	Search         bool   `json:"search"`
	Navigation     bool   `json:"navigation"`
	Tasks          bool   `json:"tasks"`
	DispatchedSync int    `json:"dispatched_sync"`
	LastCommit     string `json:"last_commit,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repoType := "unknown"
	if s.repo != nil {
		repoType = "repository"
		if comp, ok := s.repo.(introspection.Component); ok {
			repoType = comp.ComponentType()
		}
	}

	return ServiceState{
		RepositoryType: repoType,
		Search:         s.index != nil,
		Navigation:     s.nav != nil,
		Tasks:          s.tasks != nil,
		DispatchedSync: s.dispatched,
		LastCommit:     s.lastCommit,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
