// Package orchestra is an embeddable, session-scoped orchestration core.
//
// It binds three components into isolated, named sessions:
//
//   - a workflow engine that runs DAGs of named steps,
//   - a dependency-aware task queue,
//   - a resource manager that admits allocations against finite capacity.
//
// Every step and task is executed by handing a module/action pair and its
// parameters to a Dispatcher. What an action does is up to the caller;
// ActionRegistry is a ready-made function table for it.
//
// # Sessions
//
// A Session groups activity for reporting and cleanup. Resources are
// allocated with the session id as the consumer key, so two sessions never
// see each other's allocations. DeleteSession removes only the record;
// CleanupSession releases the session's allocations first.
//
//	eng := orchestra.NewInMemoryEngine(actions)
//	s, _ := eng.CreateSession(ctx, "nightly", "", nil)
//	_ = eng.AddResource(ctx, orchestra.Resource{ID: "cpu", Capacity: 100})
//	if err := eng.AllocateResourcesForSession(ctx, s.ID, "cpu", 60); err != nil {
//	    // errors.Is(err, api.ErrCapacityExceeded): retry later
//	}
//	defer eng.CleanupSession(ctx, s.ID)
//
// # Workflows
//
// Workflows are validated when registered: every dependency must name a step
// of the same workflow and the graph must be acyclic. During execution a
// failed step skips its transitive dependents while independent branches
// keep running; the run then fails with ErrWorkflowFailed. Use
// WorkflowBuilder or load YAML definitions.
//
// # Tasks
//
// Tasks live in one global pool. A task is ready once all of its dependencies
// completed; a failed or cancelled dependency blocks it for good. Workers from
// pkg/worker, or a LocalRunner, drain ready tasks through the dispatcher.
//
// # Storage
//
// Session records and the project registry can be kept in memory, SQLite,
// PostgreSQL, Redis or MongoDB. Workflow runs, the task pool and resource
// allocations are always process-local.
package orchestra
