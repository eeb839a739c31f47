// Package engine binds the workflow engine, the task queue and the resource
// manager into isolated, named sessions.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/orchestra/internal/persistence"
	"github.com/petrijr/orchestra/internal/resource"
	"github.com/petrijr/orchestra/internal/taskqueue"
	"github.com/petrijr/orchestra/internal/workflow"
	"github.com/petrijr/orchestra/pkg/api"
)

// Engine is the session-scoped orchestration engine. It is the only
// component that knows which session did what; the leaf components are
// session-agnostic.
type Engine struct {
	store     persistence.Store
	workflows *workflow.Engine
	tasks     *taskqueue.Queue
	resources *resource.Manager
	sessions  *sessionRegistry

	now   func() time.Time
	newID func() string

	shutdown atomic.Bool
}

var _ api.Engine = (*Engine)(nil)

// Config describes how to construct an Engine.
type Config struct {
	// Store holds session records and the project registry. Defaults to an
	// in-memory store.
	Store persistence.Store

	// Dispatcher executes workflow steps. Defaults to an empty
	// ActionRegistry, which fails every step.
	Dispatcher api.Dispatcher

	Observer api.Observer

	// Parallelism bounds concurrent step dispatch within one workflow run.
	Parallelism int

	// AllowUnknownDependencies switches the task queue to lenient mode.
	AllowUnknownDependencies bool

	Now   func() time.Time
	NewID func() string
}

// NewInMemoryEngine returns an Engine whose records live in process memory.
func NewInMemoryEngine(d api.Dispatcher) *Engine {
	return NewEngine(Config{Dispatcher: d})
}

// NewSQLiteEngine stores session and project records in SQLite.
func NewSQLiteEngine(db *sql.DB, d api.Dispatcher) (*Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{Store: store, Dispatcher: d}), nil
}

// NewPostgresEngine stores session and project records in PostgreSQL.
func NewPostgresEngine(db *sql.DB, d api.Dispatcher) (*Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{Store: store, Dispatcher: d}), nil
}

// NewRedisEngine stores session and project records in Redis under the
// "orchestra:" key prefix.
func NewRedisEngine(client *redis.Client, d api.Dispatcher) *Engine {
	return NewEngine(Config{
		Store:      persistence.NewRedisStore(client, "orchestra:"),
		Dispatcher: d,
	})
}

// NewMongoEngine stores session and project records in the "orchestra"
// MongoDB database.
func NewMongoEngine(client *mongo.Client, d api.Dispatcher) *Engine {
	return NewEngine(Config{
		Store:      persistence.NewMongoStore(client, ""),
		Dispatcher: d,
	})
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	store := cfg.Store
	if store == nil {
		store = persistence.NewInMemoryStore()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = api.NewActionRegistry()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Engine{
		store: store,
		workflows: workflow.NewEngine(workflow.Config{
			Dispatcher:  dispatcher,
			Observer:    cfg.Observer,
			Parallelism: cfg.Parallelism,
			Now:         now,
		}),
		tasks: taskqueue.New(taskqueue.Options{
			AllowUnknownDependencies: cfg.AllowUnknownDependencies,
			Now:                      now,
			NewID:                    newID,
		}),
		resources: resource.NewManager(),
		sessions:  newSessionRegistry(),
		now:       now,
		newID:     newID,
	}
}

// Tasks exposes the global task queue so workers can drain it.
func (e *Engine) Tasks() *taskqueue.Queue { return e.tasks }

// Workflows exposes the workflow engine.
func (e *Engine) Workflows() *workflow.Engine { return e.workflows }

// Resources exposes the resource manager.
func (e *Engine) Resources() *resource.Manager { return e.resources }

func (e *Engine) checkRunning() error {
	if e.shutdown.Load() {
		return api.ErrShutdown
	}
	return nil
}

// session checks the engine is running and the session exists.
func (e *Engine) session(ctx context.Context, id string) (*api.Session, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	return e.store.GetSession(ctx, id)
}

// lockedSession takes the session lock and then checks the session exists.
// The caller must call release, also on error.
func (e *Engine) lockedSession(ctx context.Context, id string, exclusive bool) (s *api.Session, release func(), err error) {
	if err := e.checkRunning(); err != nil {
		return nil, func() {}, err
	}
	release = e.sessions.Lock(id, exclusive)
	s, err = e.store.GetSession(ctx, id)
	return s, release, err
}

func (e *Engine) CreateSession(ctx context.Context, name, description string, metadata map[string]any) (*api.Session, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	s := api.NewSession(e.newID())
	s.Name = name
	s.Description = description
	s.Status = api.SessionActive
	s.CreatedAt = now
	s.UpdatedAt = now
	for k, v := range metadata {
		s.Metadata[k] = v
	}

	if err := e.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

func (e *Engine) GetSession(ctx context.Context, id string) (*api.Session, error) {
	return e.session(ctx, id)
}

func (e *Engine) ListSessions(ctx context.Context, status api.SessionStatus) ([]*api.Session, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	return e.store.ListSessions(ctx, persistence.SessionFilter{Status: status})
}

func (e *Engine) UpdateSession(ctx context.Context, id string, update api.SessionUpdate) (*api.Session, error) {
	s, release, err := e.lockedSession(ctx, id, true)
	defer release()
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown session status %q", api.ErrValidation, *update.Status)
	}

	update.Apply(s)
	s.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSession removes only the session record and its reporting
// bookkeeping. Allocations stay with the resource manager under the old
// session id.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	release := e.sessions.Lock(id, true)
	defer release()

	if err := e.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	e.sessions.Forget(id)
	return nil
}

func (e *Engine) RegisterWorkflow(_ context.Context, wf api.Workflow) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	return e.workflows.Register(wf)
}

// ExecuteWorkflowInSession does not hold the session lock while steps run.
// The run is recorded only if the session survived it.
func (e *Engine) ExecuteWorkflowInSession(ctx context.Context, sessionID, name string) (*api.WorkflowRun, error) {
	if _, err := e.session(ctx, sessionID); err != nil {
		return nil, err
	}

	run, err := e.workflows.ExecuteInSession(ctx, name, sessionID)
	if run != nil {
		e.recordRun(ctx, sessionID, run.ID)
	}
	return run, err
}

func (e *Engine) recordRun(ctx context.Context, sessionID, runID string) {
	release := e.sessions.Lock(sessionID, false)
	defer release()
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return
	}
	e.sessions.AddRun(sessionID, runID)
}

func (e *Engine) AddTaskToSession(ctx context.Context, sessionID string, task api.Task) (string, error) {
	_, release, err := e.lockedSession(ctx, sessionID, false)
	defer release()
	if err != nil {
		return "", err
	}

	task.SessionID = sessionID
	id, err := e.tasks.AddTask(task)
	if err != nil {
		return "", err
	}
	e.sessions.AddTask(sessionID, id)
	return id, nil
}

func (e *Engine) CreateProjectInSession(ctx context.Context, sessionID, name, description string) (*api.Project, error) {
	_, release, err := e.lockedSession(ctx, sessionID, false)
	defer release()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", api.ErrValidation)
	}

	p := &api.Project{
		Name:        name,
		Description: description,
		SessionID:   sessionID,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	e.sessions.AddProject(sessionID, name)
	return p, nil
}

func (e *Engine) GetProject(ctx context.Context, name string) (*api.Project, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	return e.store.GetProject(ctx, name)
}

func (e *Engine) ListProjects(ctx context.Context) ([]*api.Project, error) {
	if err := e.checkRunning(); err != nil {
		return nil, err
	}
	return e.store.ListProjects(ctx)
}

func (e *Engine) AddResource(_ context.Context, r api.Resource) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	return e.resources.AddResource(r)
}

func (e *Engine) AllocateResourcesForSession(ctx context.Context, sessionID, resourceID string, amount float64) error {
	_, release, err := e.lockedSession(ctx, sessionID, false)
	defer release()
	if err != nil {
		return err
	}
	return e.resources.Allocate(resourceID, sessionID, amount)
}

func (e *Engine) ReleaseResourcesForSession(ctx context.Context, sessionID, resourceID string) (bool, error) {
	_, release, err := e.lockedSession(ctx, sessionID, false)
	defer release()
	if err != nil {
		return false, err
	}
	return e.resources.Release(resourceID, sessionID), nil
}

// GetSessionResources answers with an empty map for an unknown session; it
// only fails after Shutdown or on a store error.
func (e *Engine) GetSessionResources(ctx context.Context, sessionID string) (map[string]float64, error) {
	if _, err := e.session(ctx, sessionID); err != nil {
		if errors.Is(err, api.ErrSessionNotFound) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	return e.resources.SnapshotFor(sessionID), nil
}

func (e *Engine) GetSessionReport(ctx context.Context, sessionID string) (*api.SessionReport, error) {
	s, release, err := e.lockedSession(ctx, sessionID, false)
	defer release()
	if err != nil {
		return nil, err
	}

	tasks, runs, projects := e.sessions.Get(sessionID)
	return &api.SessionReport{
		Session:      s,
		TaskIDs:      tasks,
		WorkflowRuns: runs,
		Projects:     projects,
		Resources:    e.resources.SnapshotFor(sessionID),
	}, nil
}

// CleanupSession releases every allocation held by the session and deletes
// it. It holds the session lock exclusively, so no allocation can land
// between the snapshot and the delete. Across processes sharing a store,
// the store's delete still arbitrates: exactly one cleanup succeeds.
func (e *Engine) CleanupSession(ctx context.Context, sessionID string) error {
	_, release, err := e.lockedSession(ctx, sessionID, true)
	defer release()
	if err != nil {
		return err
	}

	for resourceID := range e.resources.SnapshotFor(sessionID) {
		e.resources.Release(resourceID, sessionID)
	}
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	e.sessions.Forget(sessionID)
	return nil
}

func (e *Engine) GetSystemStatus(ctx context.Context) (api.SystemStatus, error) {
	if err := e.checkRunning(); err != nil {
		return api.SystemStatus{}, err
	}

	sessions, err := e.store.ListSessions(ctx, persistence.SessionFilter{})
	if err != nil {
		return api.SystemStatus{}, err
	}
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return api.SystemStatus{}, err
	}

	active := 0
	for _, s := range sessions {
		if s.Status == api.SessionActive {
			active++
		}
	}
	wf := e.workflows.Stats()
	ts := e.tasks.Stats()
	rs := e.resources.Stats()

	return api.SystemStatus{
		ActiveSessions:    active,
		TotalSessions:     len(sessions),
		TotalWorkflows:    wf.TotalWorkflows,
		RunningWorkflows:  wf.RunningWorkflows,
		TotalTasks:        ts.Total,
		RunningTasks:      ts.Running,
		CompletedTasks:    ts.Completed,
		FailedTasks:       ts.Failed,
		TotalProjects:     len(projects),
		TotalResources:    rs.TotalResources,
		ActiveAllocations: rs.ActiveAllocations,
	}, nil
}

// GetHealthStatus always answers, also after Shutdown, so it can back a
// liveness probe.
func (e *Engine) GetHealthStatus(_ context.Context) api.HealthStatus {
	engine := api.HealthHealthy
	if e.shutdown.Load() {
		engine = api.HealthShuttingDown
	}
	return api.HealthStatus{
		Status: engine,
		Components: map[string]string{
			"engine":           engine,
			"session_store":    api.HealthHealthy,
			"workflow_engine":  api.HealthHealthy,
			"task_queue":       api.HealthHealthy,
			"resource_manager": api.HealthHealthy,
		},
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) Shutdown() {
	e.shutdown.Store(true)
}
