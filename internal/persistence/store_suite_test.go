package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/orchestra/pkg/api"
)

// storeSuite runs the same contract against every Store backend. open must
// return a store with no sessions or projects in it.
type storeSuite struct {
	suite.Suite
	open  func(t *testing.T) Store
	store Store
	ctx   context.Context
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func (s *storeSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.open(s.T())
}

func (s *storeSuite) newSession(id string, created time.Time, status api.SessionStatus) *api.Session {
	sess := api.NewSession(id)
	sess.Name = "name-" + id
	sess.Description = "desc-" + id
	sess.Status = status
	sess.CreatedAt = created
	sess.UpdatedAt = created
	return sess
}

func (s *storeSuite) TestSaveAndGetSession() {
	sess := s.newSession("s-1", t0, api.SessionActive)
	sess.Metadata = map[string]any{"owner": "alice", "cpu": 50}
	s.Require().NoError(s.store.SaveSession(s.ctx, sess))

	got, err := s.store.GetSession(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal("s-1", got.ID)
	s.Equal("name-s-1", got.Name)
	s.Equal("desc-s-1", got.Description)
	s.Equal(api.SessionActive, got.Status)
	s.True(got.CreatedAt.Equal(t0), "created_at: %v", got.CreatedAt)
	s.True(got.UpdatedAt.Equal(t0), "updated_at: %v", got.UpdatedAt)
	s.Equal("alice", got.Metadata["owner"])
	s.EqualValues(50, got.Metadata["cpu"])
}

func (s *storeSuite) TestGetUnknownSession() {
	_, err := s.store.GetSession(s.ctx, "missing")
	s.ErrorIs(err, api.ErrSessionNotFound)
	s.ErrorIs(err, api.ErrNotFound)
}

func (s *storeSuite) TestSessionWithoutMetadata() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("bare", t0, api.SessionPending)))

	got, err := s.store.GetSession(s.ctx, "bare")
	s.Require().NoError(err)
	s.Empty(got.Metadata)
	s.Equal(api.SessionPending, got.Status)
}

func (s *storeSuite) TestUpdateSession() {
	sess := s.newSession("s-1", t0, api.SessionActive)
	s.Require().NoError(s.store.SaveSession(s.ctx, sess))

	sess.Name = "renamed"
	sess.Status = api.SessionCompleted
	sess.UpdatedAt = t0.Add(time.Minute)
	sess.Metadata = map[string]any{"k": "v"}
	s.Require().NoError(s.store.UpdateSession(s.ctx, sess))

	got, err := s.store.GetSession(s.ctx, "s-1")
	s.Require().NoError(err)
	s.Equal("renamed", got.Name)
	s.Equal(api.SessionCompleted, got.Status)
	s.True(got.CreatedAt.Equal(t0))
	s.True(got.UpdatedAt.Equal(t0.Add(time.Minute)))
	s.Equal(map[string]any{"k": "v"}, got.Metadata)
}

func (s *storeSuite) TestUpdateUnknownSession() {
	err := s.store.UpdateSession(s.ctx, s.newSession("ghost", t0, api.SessionActive))
	s.ErrorIs(err, api.ErrSessionNotFound)

	_, err = s.store.GetSession(s.ctx, "ghost")
	s.ErrorIs(err, api.ErrSessionNotFound, "update must not create the record")
}

func (s *storeSuite) TestListSessionsOrderAndFilter() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("c", t0.Add(2*time.Second), api.SessionActive)))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("a", t0, api.SessionActive)))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("b", t0.Add(time.Second), api.SessionFailed)))

	all, err := s.store.ListSessions(s.ctx, SessionFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, sessionIDs(all))

	active, err := s.store.ListSessions(s.ctx, SessionFilter{Status: api.SessionActive})
	s.Require().NoError(err)
	s.Equal([]string{"a", "c"}, sessionIDs(active))

	none, err := s.store.ListSessions(s.ctx, SessionFilter{Status: api.SessionCancelled})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *storeSuite) TestListSessionsTieBreaksOnID() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("z", t0, api.SessionActive)))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("m", t0, api.SessionActive)))

	all, err := s.store.ListSessions(s.ctx, SessionFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"m", "z"}, sessionIDs(all))
}

func (s *storeSuite) TestDeleteSession() {
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("s-1", t0, api.SessionActive)))
	s.Require().NoError(s.store.SaveSession(s.ctx, s.newSession("s-2", t0, api.SessionActive)))

	s.Require().NoError(s.store.DeleteSession(s.ctx, "s-1"))

	_, err := s.store.GetSession(s.ctx, "s-1")
	s.ErrorIs(err, api.ErrSessionNotFound)
	s.ErrorIs(s.store.DeleteSession(s.ctx, "s-1"), api.ErrSessionNotFound)

	rest, err := s.store.ListSessions(s.ctx, SessionFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"s-2"}, sessionIDs(rest))
}

func (s *storeSuite) TestProjects() {
	first := &api.Project{Name: "beta", Description: "second", SessionID: "s-1", CreatedAt: t0}
	second := &api.Project{Name: "alpha", Description: "first", CreatedAt: t0.Add(time.Second)}
	s.Require().NoError(s.store.SaveProject(s.ctx, first))
	s.Require().NoError(s.store.SaveProject(s.ctx, second))

	err := s.store.SaveProject(s.ctx, &api.Project{Name: "beta", Description: "dup"})
	s.ErrorIs(err, api.ErrProjectExists)

	got, err := s.store.GetProject(s.ctx, "beta")
	s.Require().NoError(err)
	s.Equal("second", got.Description, "duplicate must not overwrite")
	s.Equal("s-1", got.SessionID)
	s.True(got.CreatedAt.Equal(t0))

	_, err = s.store.GetProject(s.ctx, "gamma")
	s.ErrorIs(err, api.ErrProjectNotFound)
	s.ErrorIs(err, api.ErrNotFound)

	list, err := s.store.ListProjects(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("alpha", list[0].Name)
	s.Equal("beta", list[1].Name)
}

func (s *storeSuite) TestEmptyStore() {
	sessions, err := s.store.ListSessions(s.ctx, SessionFilter{})
	s.Require().NoError(err)
	s.Empty(sessions)

	projects, err := s.store.ListProjects(s.ctx)
	s.Require().NoError(err)
	s.Empty(projects)
}

func sessionIDs(list []*api.Session) []string {
	out := make([]string, len(list))
	for i, sess := range list {
		out[i] = sess.ID
	}
	return out
}
