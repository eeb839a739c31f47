// Package api contains the shared types of the orchestra engine: sessions,
// workflows and their runs, tasks, resources and projects, together with
// the Engine interface, the Dispatcher seam and the Observer hooks.
//
// Most users interact with the top-level orchestra package, which re-exports
// selected types and constructors from this package. The api package is
// intended for custom integrations (dispatchers, observers, storage) and for
// contributors extending the engine itself.
//
// # Sessions
//
// A Session groups everything done on behalf of one caller. Every Engine
// operation except the registry-wide ones names a session, and the session
// id doubles as the consumer key for resource allocations. A session's
// status is administrative: the engine never changes it on its own.
//
// # Workflows and Dispatch
//
// A Workflow is a named DAG of WorkflowSteps. Each step names a
// (module, action) pair that a Dispatcher executes. ActionRegistry is the
// stock Dispatcher, a function table populated at startup. A failed step
// does not stop independent branches; its descendants are recorded as
// skipped in the WorkflowRun.
//
// # Tasks and Resources
//
// Tasks are standalone units of work in a global queue, ordered by their
// dependencies and drained by workers. Resources are capacity-limited pools
// from which sessions allocate amounts; an allocation that would exceed
// capacity is rejected without side effects.
//
// # Errors
//
// Operations return the sentinel errors declared in this package, wrapped
// with context. Match them with errors.Is; the not-found family also matches
// ErrNotFound and the validation family matches ErrValidation.
//
// # Observability
//
// The Observer interface receives workflow, step and task lifecycle events.
// LoggingObserver writes them through log/slog, BasicMetrics keeps in-memory
// counters, and NewCompositeObserver fans out to several observers.
package api
