package persistence

import (
	"context"
	"fmt"

	"github.com/petrijr/orchestra/pkg/api"
)

// SessionFilter is used to select sessions from the store.
// An empty Status means "no filter".
type SessionFilter struct {
	Status api.SessionStatus
}

// SessionStore handles storage of session records.
//
// Implementations return errors wrapping api.ErrSessionNotFound for unknown
// ids and hand out copies, so callers may mutate what they receive.
type SessionStore interface {
	SaveSession(ctx context.Context, s *api.Session) error
	UpdateSession(ctx context.Context, s *api.Session) error
	GetSession(ctx context.Context, id string) (*api.Session, error)
	// ListSessions returns matching sessions ordered by creation time, then id.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// ProjectStore handles storage of the flat project registry.
type ProjectStore interface {
	// SaveProject fails with api.ErrProjectExists if the name is taken.
	SaveProject(ctx context.Context, p *api.Project) error
	GetProject(ctx context.Context, name string) (*api.Project, error)
	// ListProjects returns all projects ordered by name.
	ListProjects(ctx context.Context) ([]*api.Project, error)
}

// Store bundles both record stores so the engine can depend on a single
// abstraction.
type Store interface {
	SessionStore
	ProjectStore
}

func sessionNotFound(id string) error {
	return fmt.Errorf("%w: %q", api.ErrSessionNotFound, id)
}

func projectNotFound(name string) error {
	return fmt.Errorf("%w: %q", api.ErrProjectNotFound, name)
}

func projectExists(name string) error {
	return fmt.Errorf("%w: %q", api.ErrProjectExists, name)
}

func cloneProject(p *api.Project) *api.Project {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
