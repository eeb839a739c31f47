package persistence

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/petrijr/orchestra/pkg/api"
)

// InMemoryStore is a goroutine-safe Store backed by maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*api.Session
	projects map[string]*api.Project
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*api.Session),
		projects: make(map[string]*api.Project),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveSession(_ context.Context, sess *api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) UpdateSession(_ context.Context, sess *api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return sessionNotFound(sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (*api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) ListSessions(_ context.Context, filter SessionFilter) ([]*api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		out = append(out, sess.Clone())
	}
	sortSessions(out)
	return out, nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return sessionNotFound(id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) SaveProject(_ context.Context, p *api.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.Name]; ok {
		return projectExists(p.Name)
	}
	s.projects[p.Name] = cloneProject(p)
	return nil
}

func (s *InMemoryStore) GetProject(_ context.Context, name string) (*api.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[name]
	if !ok {
		return nil, projectNotFound(name)
	}
	return cloneProject(p), nil
}

func (s *InMemoryStore) ListProjects(_ context.Context) ([]*api.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, cloneProject(p))
	}
	sortProjects(out)
	return out, nil
}

func sortSessions(list []*api.Session) {
	slices.SortFunc(list, func(a, b *api.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortProjects(list []*api.Project) {
	slices.SortFunc(list, func(a, b *api.Project) int {
		return strings.Compare(a.Name, b.Name)
	})
}
