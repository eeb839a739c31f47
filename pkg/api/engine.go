package api

import "context"

// Engine is the session-scoped orchestration API. Every operation first
// validates the session (ErrSessionNotFound otherwise) and, after Shutdown,
// every operation except GetHealthStatus returns ErrShutdown.
type Engine interface {
	// CreateSession stores a new ACTIVE session under a generated id.
	CreateSession(ctx context.Context, name, description string, metadata map[string]any) (*Session, error)

	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions ordered by creation time. An empty status
	// returns all sessions.
	ListSessions(ctx context.Context, status SessionStatus) ([]*Session, error)

	// UpdateSession overwrites the selected fields. No status transition is forbidden.
	UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error)

	// DeleteSession removes the session record only. Allocations, tasks and
	// projects created on its behalf are left untouched; use CleanupSession
	// to release allocations as well.
	DeleteSession(ctx context.Context, id string) error

	// RegisterWorkflow validates and stores a workflow definition, replacing
	// any previous definition with the same name.
	RegisterWorkflow(ctx context.Context, wf Workflow) error

	// ExecuteWorkflowInSession runs the named workflow on behalf of a session.
	// A run with failed steps is returned together with ErrWorkflowFailed.
	ExecuteWorkflowInSession(ctx context.Context, sessionID, workflow string) (*WorkflowRun, error)

	// AddTaskToSession adds a task to the global task queue and associates it
	// with the session for reporting. It returns the task id.
	AddTaskToSession(ctx context.Context, sessionID string, task Task) (string, error)

	CreateProjectInSession(ctx context.Context, sessionID, name, description string) (*Project, error)
	GetProject(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	// AddResource registers (or replaces) a resource in the resource manager.
	AddResource(ctx context.Context, r Resource) error

	// AllocateResourcesForSession allocates amount units using the session id
	// as the consumer key. Failures are ErrResourceNotFound, ErrInvalidAmount
	// or ErrCapacityExceeded and leave no side effect.
	AllocateResourcesForSession(ctx context.Context, sessionID, resourceID string, amount float64) error

	// ReleaseResourcesForSession releases the session's allocation of the
	// resource and reports whether one existed.
	ReleaseResourcesForSession(ctx context.Context, sessionID, resourceID string) (bool, error)

	// GetSessionResources returns resourceID -> allocated amount for the
	// session; an unknown session yields an empty map.
	GetSessionResources(ctx context.Context, sessionID string) (map[string]float64, error)

	GetSessionReport(ctx context.Context, sessionID string) (*SessionReport, error)

	// CleanupSession releases every allocation held by the session and then
	// deletes it. A second call returns ErrSessionNotFound.
	CleanupSession(ctx context.Context, sessionID string) error

	GetSystemStatus(ctx context.Context) (SystemStatus, error)
	GetHealthStatus(ctx context.Context) HealthStatus

	// Shutdown requests a cooperative stop. In-flight work is not cancelled.
	Shutdown()
}
