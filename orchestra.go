package orchestra

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/orchestra/internal/engine"
	"github.com/petrijr/orchestra/internal/persistence"
	"github.com/petrijr/orchestra/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Session              = api.Session
	SessionStatus        = api.SessionStatus
	SessionUpdate        = api.SessionUpdate
	SessionReport        = api.SessionReport
	Workflow             = api.Workflow
	WorkflowStep         = api.WorkflowStep
	WorkflowRun          = api.WorkflowRun
	StepResult           = api.StepResult
	Task                 = api.Task
	TaskStatus           = api.TaskStatus
	Resource             = api.Resource
	Project              = api.Project
	SystemStatus         = api.SystemStatus
	HealthStatus         = api.HealthStatus
	Dispatcher           = api.Dispatcher
	DispatcherFunc       = api.DispatcherFunc
	DispatchResult       = api.DispatchResult
	ActionFunc           = api.ActionFunc
	ActionRegistry       = api.ActionRegistry
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

var (
	NewActionRegistry    = api.NewActionRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	Succeeded            = api.Succeeded
	Failed               = api.Failed
)

// Errors returned by Engine operations; match them with errors.Is.
var (
	ErrNotFound         = api.ErrNotFound
	ErrSessionNotFound  = api.ErrSessionNotFound
	ErrWorkflowNotFound = api.ErrWorkflowNotFound
	ErrProjectNotFound  = api.ErrProjectNotFound
	ErrResourceNotFound = api.ErrResourceNotFound
	ErrValidation       = api.ErrValidation
	ErrCapacityExceeded = api.ErrCapacityExceeded
	ErrWorkflowFailed   = api.ErrWorkflowFailed
	ErrShutdown         = api.ErrShutdown
)

const (
	SessionPending   = api.SessionPending
	SessionActive    = api.SessionActive
	SessionCompleted = api.SessionCompleted
	SessionFailed    = api.SessionFailed
	SessionCancelled = api.SessionCancelled
)

// Options tunes an engine beyond its storage backend.
type Options struct {
	// Dispatcher executes workflow steps. A nil Dispatcher fails every step.
	Dispatcher Dispatcher

	Observer Observer

	// Parallelism bounds concurrent step dispatch within one workflow run;
	// 1 (the default) dispatches steps one at a time in topological order.
	Parallelism int

	// AllowUnknownDependencies accepts tasks that depend on ids the queue
	// has not seen yet instead of rejecting them.
	AllowUnknownDependencies bool
}

func (o Options) config(store persistence.Store) engine.Config {
	return engine.Config{
		Store:                    store,
		Dispatcher:               o.Dispatcher,
		Observer:                 o.Observer,
		Parallelism:              o.Parallelism,
		AllowUnknownDependencies: o.AllowUnknownDependencies,
	}
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine that keeps every record in memory.
func NewInMemoryEngine(d Dispatcher) Engine {
	return NewInMemoryEngineWithOptions(Options{Dispatcher: d})
}

// NewInMemoryEngineWithOptions returns an in-memory Engine configured by opts.
func NewInMemoryEngineWithOptions(opts Options) Engine {
	return engine.NewEngine(opts.config(nil))
}

// NewSQLiteEngine returns an Engine that keeps session and project records
// in SQLite. Runs, tasks and allocations stay in process memory.
func NewSQLiteEngine(db *sql.DB, d Dispatcher) (Engine, error) {
	return NewSQLiteEngineWithOptions(db, Options{Dispatcher: d})
}

// NewSQLiteEngineWithOptions is NewSQLiteEngine configured by opts.
func NewSQLiteEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(opts.config(store)), nil
}

// NewPostgresEngine returns an Engine that keeps session and project records
// in PostgreSQL.
func NewPostgresEngine(db *sql.DB, d Dispatcher) (Engine, error) {
	return NewPostgresEngineWithOptions(db, Options{Dispatcher: d})
}

// NewPostgresEngineWithOptions is NewPostgresEngine configured by opts.
func NewPostgresEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngine(opts.config(store)), nil
}

// NewRedisEngine returns an Engine that keeps session and project records in Redis.
func NewRedisEngine(client *redis.Client, d Dispatcher) Engine {
	return NewRedisEngineWithOptions(client, "", Options{Dispatcher: d})
}

// NewRedisEngineWithOptions is NewRedisEngine with a key prefix
// (default "orchestra:") and opts.
func NewRedisEngineWithOptions(client *redis.Client, prefix string, opts Options) Engine {
	return engine.NewEngine(opts.config(persistence.NewRedisStore(client, prefix)))
}

// NewMongoEngine returns an Engine that keeps session and project records in MongoDB.
func NewMongoEngine(client *mongo.Client, d Dispatcher) Engine {
	return NewMongoEngineWithOptions(client, "", Options{Dispatcher: d})
}

// NewMongoEngineWithOptions is NewMongoEngine with a database name
// (default "orchestra") and opts.
func NewMongoEngineWithOptions(client *mongo.Client, dbName string, opts Options) Engine {
	return engine.NewEngine(opts.config(persistence.NewMongoStore(client, dbName)))
}
